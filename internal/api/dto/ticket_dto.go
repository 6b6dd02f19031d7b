package dto

import (
	"encoding/json"
	"time"

	"github.com/taskpilot/tracker/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	Type        domain.TicketType     `json:"type"`
	DueDate     string                `json:"dueDate"`
}

// UpdateTicketRequest payload. Absent fields are left untouched; an
// explicit null or empty dueDate clears it.
type UpdateTicketRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Status      *domain.TicketStatus   `json:"status"`
	Priority    *domain.TicketPriority `json:"priority"`
	Type        *domain.TicketType     `json:"type"`
	DueDate     json.RawMessage        `json:"dueDate"`
	Version     *int                   `json:"version"`
}

// AssignRequest payload. A null or empty userId unassigns.
type AssignRequest struct {
	UserID *string `json:"userId"`
}

// CommentRequest payload.
type CommentRequest struct {
	Text string `json:"text"`
}

// AttachmentResponse describes a stored file.
type AttachmentResponse struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	OriginalName string    `json:"originalName"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"`
	UploadedBy   string    `json:"uploadedBy"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// HistoryResponse is one audit entry.
type HistoryResponse struct {
	ID        string               `json:"id"`
	User      UserRefResponse      `json:"user"`
	Action    domain.HistoryAction `json:"action"`
	Field     string               `json:"field,omitempty"`
	OldValue  string               `json:"oldValue,omitempty"`
	NewValue  string               `json:"newValue,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// TicketResponse is the full ticket view.
type TicketResponse struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	Type        domain.TicketType     `json:"type"`
	DueDate     *string               `json:"dueDate"`
	CreatedBy   UserRefResponse       `json:"createdBy"`
	Assignee    *UserRefResponse      `json:"assignee"`
	Attachments []AttachmentResponse  `json:"attachments"`
	History     []HistoryResponse     `json:"history"`
	Version     int                   `json:"version"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// NewTicketResponse renders a ticket with its history and attachments.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		Type:        t.Type,
		CreatedBy:   userRef(t.CreatedBy),
		Attachments: make([]AttachmentResponse, 0, len(t.Attachments)),
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.DueDate != nil {
		due := t.DueDate.UTC().Format(domain.DueDateLayout)
		resp.DueDate = &due
	}
	if t.Assignee != nil {
		ref := userRef(*t.Assignee)
		resp.Assignee = &ref
	}
	for _, a := range t.Attachments {
		resp.Attachments = append(resp.Attachments, NewAttachmentResponse(&a))
	}
	history := t.History()
	resp.History = make([]HistoryResponse, 0, len(history))
	for _, h := range history {
		resp.History = append(resp.History, HistoryResponse{
			ID:        h.ID,
			User:      userRef(h.Actor),
			Action:    h.Action,
			Field:     h.Field,
			OldValue:  h.OldValue,
			NewValue:  h.NewValue,
			Timestamp: h.Timestamp,
		})
	}
	return resp
}

// NewTicketResponses renders a list of tickets.
func NewTicketResponses(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, NewTicketResponse(&tickets[i]))
	}
	return out
}

// NewAttachmentResponse renders attachment metadata.
func NewAttachmentResponse(a *domain.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:           a.ID,
		Filename:     a.Filename,
		Path:         a.Path,
		OriginalName: a.OriginalName,
		ContentType:  a.ContentType,
		Size:         a.SizeBytes,
		Checksum:     a.Checksum,
		UploadedBy:   a.UploadedBy,
		UploadedAt:   a.UploadedAt,
	}
}
