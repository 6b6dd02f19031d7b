package sqlitestore

import (
	"time"

	"github.com/taskpilot/tracker/internal/domain"
)

// Row types mirror the Postgres schema in migrations/. Timestamps are
// always written explicitly so gorm's automatic tracking is disabled.

type userRow struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"not null;uniqueIndex:users_email_key"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"not null;default:user;index"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (userRow) TableName() string { return "users" }

type ticketRow struct {
	ID          string `gorm:"primaryKey;size:36"`
	Title       string `gorm:"not null"`
	Description string `gorm:"not null"`
	Status      string `gorm:"not null;index"`
	Priority    string `gorm:"not null"`
	Type        string `gorm:"not null"`
	DueDate     *time.Time
	CreatedBy   string    `gorm:"size:36;not null;index"`
	AssigneeID  *string   `gorm:"size:36;index"`
	Version     int       `gorm:"not null;default:1"`
	CreatedAt   time.Time `gorm:"index;autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (ticketRow) TableName() string { return "tickets" }

type historyRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	TicketID  string    `gorm:"size:36;not null;uniqueIndex:ticket_history_position_key,priority:1"`
	Position  int       `gorm:"not null;uniqueIndex:ticket_history_position_key,priority:2"`
	ActorID   *string   `gorm:"size:36"`
	ActorName string    `gorm:"not null;default:''"`
	Action    string    `gorm:"not null"`
	Field     string    `gorm:"not null;default:''"`
	OldValue  string    `gorm:"not null;default:''"`
	NewValue  string    `gorm:"not null;default:''"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (historyRow) TableName() string { return "ticket_history" }

type attachmentRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	TicketID     string `gorm:"size:36;not null;index"`
	Filename     string `gorm:"not null"`
	Path         string `gorm:"not null"`
	OriginalName string `gorm:"not null"`
	ContentType  string
	SizeBytes    int64
	Checksum     string
	UploadedBy   *string `gorm:"size:36"`
	UploadedAt   time.Time
}

func (attachmentRow) TableName() string { return "ticket_attachments" }

type commentRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	TicketID  string    `gorm:"size:36;not null;index"`
	AuthorID  string    `gorm:"size:36;not null;index"`
	Text      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (commentRow) TableName() string { return "comments" }

type notificationRow struct {
	ID          string    `gorm:"primaryKey;size:36"`
	RecipientID string    `gorm:"size:36;not null;index"`
	Message     string    `gorm:"not null"`
	Link        string    `gorm:"index"`
	Read        bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
}

func (notificationRow) TableName() string { return "notifications" }

func allModels() []any {
	return []any{&userRow{}, &ticketRow{}, &historyRow{}, &attachmentRow{}, &commentRow{}, &notificationRow{}}
}

func toUserRow(u *domain.User) userRow {
	return userRow{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r userRow) toDomain() domain.User {
	return domain.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         domain.Role(r.Role),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toTicketRow(t *domain.Ticket) ticketRow {
	row := ticketRow{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Type:        string(t.Type),
		DueDate:     t.DueDate,
		CreatedBy:   t.CreatedBy.ID,
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.Assignee != nil && t.Assignee.ID != "" {
		id := t.Assignee.ID
		row.AssigneeID = &id
	}
	return row
}

// toDomain resolves user references through refs; unknown ids keep only
// their identifier.
func (r ticketRow) toDomain(refs map[string]domain.UserRef) domain.Ticket {
	t := domain.Ticket{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Status:      domain.TicketStatus(r.Status),
		Priority:    domain.TicketPriority(r.Priority),
		Type:        domain.TicketType(r.Type),
		CreatedBy:   refOf(refs, r.CreatedBy),
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.DueDate != nil {
		d := r.DueDate.UTC()
		t.DueDate = &d
	}
	if r.AssigneeID != nil {
		ref := refOf(refs, *r.AssigneeID)
		t.Assignee = &ref
	}
	return t
}

func toHistoryRow(ticketID string, position int, e domain.HistoryEntry) historyRow {
	return historyRow{
		ID:        e.ID,
		TicketID:  ticketID,
		Position:  position,
		ActorID:   nullable(e.Actor.ID),
		ActorName: e.Actor.Name,
		Action:    string(e.Action),
		Field:     e.Field,
		OldValue:  e.OldValue,
		NewValue:  e.NewValue,
		CreatedAt: e.Timestamp,
	}
}

func (r attachmentRow) toDomain() domain.Attachment {
	a := domain.Attachment{
		ID:           r.ID,
		TicketID:     r.TicketID,
		Filename:     r.Filename,
		Path:         r.Path,
		OriginalName: r.OriginalName,
		ContentType:  r.ContentType,
		SizeBytes:    r.SizeBytes,
		Checksum:     r.Checksum,
		UploadedAt:   r.UploadedAt,
	}
	if r.UploadedBy != nil {
		a.UploadedBy = *r.UploadedBy
	}
	return a
}

func (r notificationRow) toDomain() domain.Notification {
	return domain.Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		Message:     r.Message,
		Link:        r.Link,
		Read:        r.Read,
		CreatedAt:   r.CreatedAt,
	}
}

func refOf(refs map[string]domain.UserRef, id string) domain.UserRef {
	if ref, ok := refs[id]; ok {
		return ref
	}
	return domain.UserRef{ID: id}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
