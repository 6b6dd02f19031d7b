package service

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskpilot/tracker/internal/domain"
	"github.com/taskpilot/tracker/internal/events"
	"github.com/taskpilot/tracker/internal/policy"
	"github.com/taskpilot/tracker/internal/repository"
	"github.com/taskpilot/tracker/internal/storage"
	apperrors "github.com/taskpilot/tracker/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets       repository.TicketRepository
	users         repository.UserRepository
	notifications repository.NotificationRepository
	blobs         storage.BlobStore
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	now           Clock
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo       repository.TicketRepository
	UserRepo         repository.UserRepository
	NotificationRepo repository.NotificationRepository
	Blobs            storage.BlobStore
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	Clock            Clock
}

// TicketListInput describes listing filters as received from clients.
type TicketListInput struct {
	Search   string
	Status   string
	Priority string
	Type     string
	Assignee string
	Limit    int
	Offset   int
}

// TicketUpdateInput carries field changes and an optional expected version.
type TicketUpdateInput struct {
	Changes domain.TicketChanges
	Version *int
}

// UploadInput describes one uploaded file.
type UploadInput struct {
	OriginalName string
	ContentType  string
	Size         int64
	Content      io.Reader
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:       deps.TicketRepo,
		users:         deps.UserRepo,
		notifications: deps.NotificationRepo,
		blobs:         deps.Blobs,
		dispatcher:    deps.Dispatcher,
		logger:        loggerOrNop(deps.Logger),
		now:           clockOrDefault(deps.Clock),
	}
}

// Create opens a ticket on behalf of actor.
func (s *TicketService) Create(ctx context.Context, actor *domain.User, input domain.NewTicketInput) (*domain.Ticket, error) {
	if err := policy.Authorize(actor, policy.ActionCreate, nil); err != nil {
		return nil, err
	}
	ticket, err := domain.NewTicket(actor.Ref(), input, s.now())
	if err != nil {
		return nil, invalidInput(err)
	}
	ticket.ID = uuid.NewString()
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, mapRepoError("ticket", ticket.ID, err)
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("actor", actor.Email))

	publish(ctx, s.dispatcher, events.EventTicketCreated, ticket.ID, actor.Ref(), ticket.CreatedAt, events.TicketCreatedPayload{
		Title:       ticket.Title,
		Description: ticket.Description,
		Priority:    ticket.Priority,
	})
	return ticket, nil
}

// List returns the tickets actor may see, newest first.
func (s *TicketService) List(ctx context.Context, actor *domain.User, input TicketListInput) ([]domain.Ticket, error) {
	if err := policy.Authorize(actor, policy.ActionList, nil); err != nil {
		return nil, err
	}
	filter := repository.TicketFilter{
		VisibleTo: policy.ListScope(actor),
		Search:    strings.TrimSpace(input.Search),
		Assignee:  strings.TrimSpace(input.Assignee),
		Limit:     input.Limit,
		Offset:    input.Offset,
	}
	if input.Status != "" {
		filter.Status = domain.TicketStatus(input.Status)
		if !filter.Status.Valid() {
			return nil, apperrors.NewValidationError("unknown status filter", map[string]any{"status": input.Status})
		}
	}
	if input.Priority != "" {
		filter.Priority = domain.TicketPriority(input.Priority)
		if !filter.Priority.Valid() {
			return nil, apperrors.NewValidationError("unknown priority filter", map[string]any{"priority": input.Priority})
		}
	}
	if input.Type != "" {
		filter.Type = domain.TicketType(input.Type)
		if !filter.Type.Valid() {
			return nil, apperrors.NewValidationError("unknown type filter", map[string]any{"type": input.Type})
		}
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, apperrors.NewValidationError("limit and offset must not be negative", nil)
	}

	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// Get loads a ticket actor may view.
func (s *TicketService) Get(ctx context.Context, actor *domain.User, id string) (*domain.Ticket, error) {
	return s.loadFor(ctx, actor, policy.ActionView, id)
}

// Update applies field changes. Each changed field appends one history
// entry; the write is rejected when the ticket moved on since it was read.
func (s *TicketService) Update(ctx context.Context, actor *domain.User, id string, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.loadFor(ctx, actor, policy.ActionUpdate, id)
	if err != nil {
		return nil, err
	}
	if input.Version != nil && *input.Version != ticket.Version {
		return nil, apperrors.NewStaleVersion("ticket", map[string]any{"id": id, "currentVersion": ticket.Version})
	}

	oldStatus := ticket.Status
	changed, err := ticket.Apply(actor.Ref(), input.Changes, s.now())
	if err != nil {
		return nil, invalidInput(err)
	}
	if len(changed) == 0 {
		return ticket, nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapRepoError("ticket", id, err)
	}

	fields := make([]string, 0, len(changed))
	for _, entry := range changed {
		fields = append(fields, entry.Field)
	}
	s.logger.Info("ticket updated",
		zap.String("ticket_id", ticket.ID),
		zap.Strings("fields", fields),
		zap.String("actor", actor.Email))

	if ticket.Status != oldStatus {
		publish(ctx, s.dispatcher, events.EventTicketStatusChanged, ticket.ID, actor.Ref(), ticket.UpdatedAt, events.TicketStatusChangedPayload{
			Title:     ticket.Title,
			CreatorID: ticket.CreatedBy.ID,
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
		})
	}
	return ticket, nil
}

// Delete removes a ticket with its comments, notifications and blobs.
func (s *TicketService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if err := policy.RequireAdmin(actor); err != nil {
		return err
	}
	ticket, err := s.loadFor(ctx, actor, policy.ActionDelete, id)
	if err != nil {
		return err
	}
	// History, attachment rows and comments go with the ticket.
	if err := s.tickets.Delete(ctx, id); err != nil {
		return mapRepoError("ticket", id, err)
	}

	// The ticket is gone; the remaining cleanup is best effort.
	notices, err := s.notifications.DeleteByLink(ctx, ticket.Link())
	if err != nil {
		s.logger.Warn("failed to delete ticket notifications", zap.String("ticket_id", id), zap.Error(err))
	}
	if s.blobs != nil {
		for _, a := range ticket.Attachments {
			if err := s.blobs.Delete(ctx, a.Filename); err != nil {
				s.logger.Warn("failed to delete attachment blob",
					zap.String("ticket_id", id), zap.String("file", a.Filename), zap.Error(err))
			}
		}
	}
	s.logger.Info("ticket deleted",
		zap.String("ticket_id", id),
		zap.Int64("notifications", notices),
		zap.String("actor", actor.Email))
	return nil
}

// Assign sets or clears the assignee. An empty assigneeID unassigns.
// Assigning the current assignee again changes nothing.
func (s *TicketService) Assign(ctx context.Context, actor *domain.User, id, assigneeID string) (*domain.Ticket, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}
	ticket, err := s.loadFor(ctx, actor, policy.ActionAssign, id)
	if err != nil {
		return nil, err
	}

	var assignee *domain.UserRef
	if assigneeID = strings.TrimSpace(assigneeID); assigneeID != "" {
		user, err := s.users.GetByID(ctx, assigneeID)
		if err != nil {
			return nil, mapRepoError("user", assigneeID, err)
		}
		ref := user.Ref()
		assignee = &ref
	}

	previous := ""
	if ticket.Assignee != nil {
		previous = ticket.Assignee.ID
	}
	if !ticket.Assign(actor.Ref(), assignee, s.now()) {
		return ticket, nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapRepoError("ticket", id, err)
	}
	s.logger.Info("ticket assigned",
		zap.String("ticket_id", ticket.ID),
		zap.String("assignee_id", assigneeID),
		zap.String("actor", actor.Email))

	publish(ctx, s.dispatcher, events.EventTicketAssigned, ticket.ID, actor.Ref(), ticket.UpdatedAt, events.TicketAssignedPayload{
		Title:      ticket.Title,
		PreviousID: previous,
		Assignee:   assignee,
	})
	return ticket, nil
}

// UploadAttachment stores one file and links it to the ticket.
func (s *TicketService) UploadAttachment(ctx context.Context, actor *domain.User, id string, file *UploadInput) (*domain.Attachment, error) {
	if file == nil || file.Content == nil {
		return nil, apperrors.NewBadRequest("no file uploaded")
	}
	ticket, err := s.loadFor(ctx, actor, policy.ActionUpload, id)
	if err != nil {
		return nil, err
	}
	if limit := s.blobs.MaxBytes(); limit > 0 && file.Size > limit {
		return nil, FileTooLarge(limit)
	}

	now := s.now()
	name := storage.AttachmentName(file.OriginalName, now)
	obj, err := s.blobs.Put(ctx, name, file.Content)
	if errors.Is(err, storage.ErrTooLarge) {
		return nil, FileTooLarge(s.blobs.MaxBytes())
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	attachment := domain.Attachment{
		ID:           uuid.NewString(),
		TicketID:     ticket.ID,
		Filename:     obj.Name,
		Path:         obj.Path,
		OriginalName: file.OriginalName,
		ContentType:  contentType,
		SizeBytes:    obj.Size,
		Checksum:     obj.Checksum,
		UploadedBy:   actor.ID,
		UploadedAt:   now,
	}
	if err := s.tickets.AddAttachment(ctx, &attachment); err != nil {
		if delErr := s.blobs.Delete(ctx, obj.Name); delErr != nil {
			s.logger.Warn("failed to remove orphaned blob", zap.String("file", obj.Name), zap.Error(delErr))
		}
		return nil, mapRepoError("ticket", id, err)
	}
	ticket.AddAttachment(attachment)
	s.logger.Info("attachment uploaded",
		zap.String("ticket_id", ticket.ID),
		zap.String("file", obj.Name),
		zap.Int64("size", obj.Size),
		zap.String("actor", actor.Email))
	return &attachment, nil
}

func (s *TicketService) loadFor(ctx context.Context, actor *domain.User, action policy.Action, id string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError("ticket", id, err)
	}
	if err := policy.Authorize(actor, action, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// FileTooLarge is the error returned for uploads above limit bytes.
func FileTooLarge(limit int64) error {
	return apperrors.NewBadRequest("file too large (max " + humanBytes(limit) + ")")
}

func humanBytes(n int64) string {
	const mib = 1 << 20
	if n%mib == 0 {
		return strconv.FormatInt(n/mib, 10) + "MB"
	}
	return strconv.FormatInt(n, 10) + " bytes"
}
