package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "Open"
	TicketStatusInProgress TicketStatus = "In Progress"
	TicketStatusResolved   TicketStatus = "Resolved"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "Low"
	TicketPriorityMedium   TicketPriority = "Medium"
	TicketPriorityHigh     TicketPriority = "High"
	TicketPriorityCritical TicketPriority = "Critical"
)

// TicketType classifies the kind of work.
type TicketType string

const (
	TicketTypeBug     TicketType = "Bug"
	TicketTypeFeature TicketType = "Feature"
	TicketTypeTask    TicketType = "Task"
)

// TicketStatuses lists statuses in board order.
var TicketStatuses = []TicketStatus{TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved}

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved:
		return true
	}
	return false
}

func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

func (t TicketType) Valid() bool {
	switch t {
	case TicketTypeBug, TicketTypeFeature, TicketTypeTask:
		return true
	}
	return false
}

// DueDateLayout is the calendar-date rendering of due dates.
const DueDateLayout = "2006-01-02"

// ErrInvalidTicket wraps every validation failure raised by the aggregate.
var ErrInvalidTicket = errors.New("invalid ticket")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTicket, fmt.Sprintf(format, args...))
}

// Attachment describes a file stored for a ticket.
type Attachment struct {
	ID           string
	TicketID     string
	Filename     string
	Path         string
	OriginalName string
	ContentType  string
	SizeBytes    int64
	Checksum     string
	UploadedBy   string
	UploadedAt   time.Time
}

// Ticket is the aggregate root for a unit of work. It owns its
// append-only history; entries can only be added through its methods.
type Ticket struct {
	ID          string
	Title       string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	Type        TicketType
	DueDate     *time.Time
	CreatedBy   UserRef
	Assignee    *UserRef
	Attachments []Attachment
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time

	history []HistoryEntry
	pending int
}

// NewTicketInput carries the caller supplied fields of a new ticket.
type NewTicketInput struct {
	Title       string
	Description string
	Priority    TicketPriority
	Type        TicketType
	DueDate     *time.Time
}

// NewTicket builds an Open ticket and records its creation entry.
func NewTicket(creator UserRef, input NewTicketInput, now time.Time) (*Ticket, error) {
	if creator.ID == "" {
		return nil, invalid("creator required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, invalid("title required")
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, invalid("description required")
	}
	priority := input.Priority
	if priority == "" {
		priority = TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, invalid("unknown priority %q", priority)
	}
	ticketType := input.Type
	if ticketType == "" {
		ticketType = TicketTypeTask
	}
	if !ticketType.Valid() {
		return nil, invalid("unknown type %q", ticketType)
	}

	t := &Ticket{
		Title:       title,
		Description: input.Description,
		Status:      TicketStatusOpen,
		Priority:    priority,
		Type:        ticketType,
		DueDate:     normalizeDueDate(input.DueDate),
		CreatedBy:   creator,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.record(HistoryEntry{Actor: creator, Action: ActionTicketCreated, Timestamp: now})
	return t, nil
}

// History returns a copy of the ticket's history in chronological order.
func (t *Ticket) History() []HistoryEntry {
	out := make([]HistoryEntry, len(t.history))
	copy(out, t.history)
	return out
}

// PendingHistory returns the entries recorded since the ticket was loaded
// or last persisted.
func (t *Ticket) PendingHistory() []HistoryEntry {
	start := len(t.history) - t.pending
	out := make([]HistoryEntry, t.pending)
	copy(out, t.history[start:])
	return out
}

// HistoryLen is the number of entries, persisted or pending.
func (t *Ticket) HistoryLen() int {
	return len(t.history)
}

// MarkPersisted is called by stores once pending entries are durable.
func (t *Ticket) MarkPersisted() {
	t.pending = 0
}

// RestoreHistory seeds a freshly loaded ticket with its stored entries.
// It has no effect on a ticket that already carries history.
func (t *Ticket) RestoreHistory(entries []HistoryEntry) {
	if len(t.history) > 0 {
		return
	}
	t.history = make([]HistoryEntry, len(entries))
	copy(t.history, entries)
	t.pending = 0
}

func (t *Ticket) record(entry HistoryEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	t.history = append(t.history, entry)
	t.pending++
}

// IsCreator reports whether userID opened the ticket.
func (t *Ticket) IsCreator(userID string) bool {
	return userID != "" && t.CreatedBy.ID == userID
}

// IsAssignee reports whether userID is the current assignee.
func (t *Ticket) IsAssignee(userID string) bool {
	return userID != "" && t.Assignee != nil && t.Assignee.ID == userID
}

// Link is the in-app deep link to the ticket.
func (t *Ticket) Link() string {
	return TicketLink(t.ID)
}

// TicketLink formats the deep link for a ticket id.
func TicketLink(id string) string {
	return "/tickets/" + id
}

// AddAttachment appends a stored file to the ticket.
func (t *Ticket) AddAttachment(a Attachment) {
	a.TicketID = t.ID
	t.Attachments = append(t.Attachments, a)
}

// DueDateChange distinguishes "leave unchanged" (nil *DueDateChange)
// from "clear" (Value == nil).
type DueDateChange struct {
	Value *time.Time
}

// TicketChanges lists the fields a caller wants to modify. Nil fields are
// left untouched.
type TicketChanges struct {
	Title       *string
	Description *string
	Status      *TicketStatus
	Priority    *TicketPriority
	Type        *TicketType
	DueDate     *DueDateChange
}

// Validate checks every present field against its value set.
func (c TicketChanges) Validate() error {
	if c.Title != nil && strings.TrimSpace(*c.Title) == "" {
		return invalid("title cannot be empty")
	}
	if c.Description != nil && strings.TrimSpace(*c.Description) == "" {
		return invalid("description cannot be empty")
	}
	if c.Status != nil && !c.Status.Valid() {
		return invalid("unknown status %q", *c.Status)
	}
	if c.Priority != nil && !c.Priority.Valid() {
		return invalid("unknown priority %q", *c.Priority)
	}
	if c.Type != nil && !c.Type.Valid() {
		return invalid("unknown type %q", *c.Type)
	}
	return nil
}

// Apply validates changes and writes every field whose rendered value
// differs from the current one. One history entry is recorded per
// changed field; the entries are returned in table order.
func (t *Ticket) Apply(actor UserRef, changes TicketChanges, now time.Time) ([]HistoryEntry, error) {
	if err := changes.Validate(); err != nil {
		return nil, err
	}
	var produced []HistoryEntry
	for _, field := range trackedFields {
		proposed, ok := field.proposed(changes)
		if !ok {
			continue
		}
		current := field.current(t)
		if current == proposed {
			continue
		}
		field.apply(t, changes)
		entry := HistoryEntry{
			Actor:     actor,
			Action:    field.action,
			Field:     field.name,
			OldValue:  current,
			NewValue:  proposed,
			Timestamp: now,
		}
		t.record(entry)
		produced = append(produced, entry)
	}
	if len(produced) > 0 {
		t.UpdatedAt = now
	}
	return produced, nil
}

// Assign sets or clears the assignee. It returns false, and records
// nothing, when the assignee does not change.
func (t *Ticket) Assign(actor UserRef, assignee *UserRef, now time.Time) bool {
	oldID, newID := "", ""
	if t.Assignee != nil {
		oldID = t.Assignee.ID
	}
	if assignee != nil {
		newID = assignee.ID
	}
	if oldID == newID {
		return false
	}
	entry := HistoryEntry{
		Actor:     actor,
		Action:    ActionAssignmentChange,
		Field:     "assignee",
		OldValue:  renderAssignee(t.Assignee),
		NewValue:  renderAssignee(assignee),
		Timestamp: now,
	}
	if assignee == nil {
		t.Assignee = nil
	} else {
		ref := *assignee
		t.Assignee = &ref
	}
	t.UpdatedAt = now
	t.record(entry)
	return true
}

func renderAssignee(ref *UserRef) string {
	if ref == nil || ref.ID == "" {
		return Unassigned
	}
	if ref.Name != "" {
		return ref.Name
	}
	return ref.ID
}

func normalizeDueDate(d *time.Time) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return &day
}

// ParseDueDate accepts a calendar date or an RFC 3339 timestamp.
// An empty string clears the due date.
func ParseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if d, err := time.Parse(DueDateLayout, raw); err == nil {
		return &d, nil
	}
	d, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, invalid("dueDate must be YYYY-MM-DD or RFC 3339")
	}
	d = d.UTC()
	return &d, nil
}
