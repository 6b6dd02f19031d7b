// Package repository defines the persistence contracts of the tracker and
// their Postgres implementation. The sqlite subpackage provides an
// embedded implementation of the same interfaces.
package repository

import (
	"context"

	"github.com/taskpilot/tracker/internal/domain"
)

// UnassignedFilter is the assignee filter value selecting tickets without
// an assignee.
const UnassignedFilter = "unassigned"

// TicketFilter narrows ticket listings. Zero values disable a clause.
type TicketFilter struct {
	// VisibleTo restricts results to tickets created by or assigned to the
	// user. Empty means every ticket.
	VisibleTo string
	// CreatedBy restricts results to tickets opened by the user.
	CreatedBy string
	Search    string
	Status    domain.TicketStatus
	Priority  domain.TicketPriority
	Type      domain.TicketType
	// Assignee is a user id or UnassignedFilter.
	Assignee string
	Limit    int
	Offset   int
}

// UserRepository defines persistence access for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByEmails(ctx context.Context, emails []string) ([]domain.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Count(ctx context.Context) (int, error)
	UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error)
	// Delete removes the account and drops its comments and
	// notifications. It fails with ErrReferenced while the user still
	// created tickets and with ErrStillAssigned while any ticket is
	// assigned to them; callers unassign through the ticket aggregate
	// first.
	Delete(ctx context.Context, id string) error
}

// TicketRepository encapsulates ticket persistence including history and
// attachment rows.
type TicketRepository interface {
	// Create inserts the ticket and its pending history.
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes the ticket if its stored version still equals
	// ticket.Version, appends pending history and bumps the version.
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// Delete removes the ticket together with its history, attachment
	// rows and comments.
	Delete(ctx context.Context, id string) error
	AddAttachment(ctx context.Context, attachment *domain.Attachment) error
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) ([]domain.StatusCount, error)
}

// CommentRepository manages ticket comment threads.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error)
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	// MarkRead fails with ErrNotFound unless the notification belongs to
	// recipientID.
	MarkRead(ctx context.Context, id, recipientID string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	DeleteByLink(ctx context.Context, link string) (int64, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	Users         UserRepository
	Tickets       TicketRepository
	Comments      CommentRepository
	Notifications NotificationRepository
	// Ping reports backend health.
	Ping func(ctx context.Context) error
}
