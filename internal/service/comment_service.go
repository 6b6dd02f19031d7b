package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskpilot/tracker/internal/domain"
	"github.com/taskpilot/tracker/internal/events"
	"github.com/taskpilot/tracker/internal/policy"
	"github.com/taskpilot/tracker/internal/repository"
	apperrors "github.com/taskpilot/tracker/pkg/util/errorutil"
)

// CommentService manages ticket discussion threads.
type CommentService struct {
	comments   repository.CommentRepository
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

// CommentDependencies bundles collaborators for comment service.
type CommentDependencies struct {
	CommentRepo repository.CommentRepository
	TicketRepo  repository.TicketRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Clock       Clock
}

// NewCommentService constructs the service.
func NewCommentService(deps CommentDependencies) *CommentService {
	return &CommentService{
		comments:   deps.CommentRepo,
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrDefault(deps.Clock),
	}
}

// Add posts a comment on a ticket the caller can see.
func (s *CommentService) Add(ctx context.Context, actor *domain.User, ticketID, text string) (*domain.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewBadRequest("comment text is required")
	}
	ticket, err := s.ticketFor(ctx, actor, policy.ActionComment, ticketID)
	if err != nil {
		return nil, err
	}

	comment := &domain.Comment{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		Author:    actor.Ref(),
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, mapRepoError("ticket", ticketID, err)
	}
	s.logger.Info("comment added",
		zap.String("ticket_id", ticket.ID),
		zap.String("comment_id", comment.ID),
		zap.String("actor", actor.Email))

	publish(ctx, s.dispatcher, events.EventCommentAdded, ticket.ID, actor.Ref(), comment.CreatedAt, events.CommentAddedPayload{
		CommentID: comment.ID,
		Title:     ticket.Title,
		CreatorID: ticket.CreatedBy.ID,
		Text:      text,
	})
	return comment, nil
}

// List returns the thread oldest first.
func (s *CommentService) List(ctx context.Context, actor *domain.User, ticketID string) ([]domain.Comment, error) {
	if _, err := s.ticketFor(ctx, actor, policy.ActionView, ticketID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return comments, nil
}

func (s *CommentService) ticketFor(ctx context.Context, actor *domain.User, action policy.Action, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError("ticket", ticketID, err)
	}
	if err := policy.Authorize(actor, action, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}
