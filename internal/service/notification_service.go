package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskpilot/tracker/internal/domain"
	"github.com/taskpilot/tracker/internal/events"
	"github.com/taskpilot/tracker/internal/mailer"
	"github.com/taskpilot/tracker/internal/mention"
	"github.com/taskpilot/tracker/internal/repository"
	apperrors "github.com/taskpilot/tracker/pkg/util/errorutil"
)

// NotificationSettings controls how notifications are rendered and mailed.
type NotificationSettings struct {
	// AppURL prefixes ticket links in emails.
	AppURL        string
	SubjectPrefix string
	EmailEnabled  bool
}

// NotificationDependencies bundles collaborators for notification service.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	UserRepo         repository.UserRepository
	Resolver         *mention.Resolver
	Mailer           mailer.Notifier
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	Settings         NotificationSettings
	Clock            Clock
}

// NotificationService fans domain events out to in-app notifications and
// email, and serves the caller's notification inbox.
type NotificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	resolver      *mention.Resolver
	mailer        mailer.Notifier
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	settings      NotificationSettings
	now           Clock
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	resolver := deps.Resolver
	if resolver == nil && deps.UserRepo != nil {
		resolver = mention.NewResolver(deps.UserRepo)
	}
	return &NotificationService{
		notifications: deps.NotificationRepo,
		users:         deps.UserRepo,
		resolver:      resolver,
		mailer:        deps.Mailer,
		dispatcher:    deps.Dispatcher,
		logger:        loggerOrNop(deps.Logger),
		settings:      deps.Settings,
		now:           clockOrDefault(deps.Clock),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventCommentAdded, n.handleCommentAdded)
}

// Notify stores an in-app notification for recipientID.
func (n *NotificationService) Notify(ctx context.Context, recipientID, message, link string) (*domain.Notification, error) {
	if recipientID == "" {
		return nil, errors.New("notify: recipient required")
	}
	record := &domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Message:     message,
		Link:        link,
		CreatedAt:   n.now(),
	}
	if err := n.notifications.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("notify %s: %w", recipientID, err)
	}
	return record, nil
}

// List returns the caller's notifications, newest first.
func (n *NotificationService) List(ctx context.Context, caller *domain.User) ([]domain.Notification, error) {
	if caller == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	items, err := n.notifications.ListByRecipient(ctx, caller.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return items, nil
}

// UnreadCount returns how many of the caller's notifications are unread.
func (n *NotificationService) UnreadCount(ctx context.Context, caller *domain.User) (int, error) {
	if caller == nil {
		return 0, apperrors.NewUnauthorized("authentication required")
	}
	count, err := n.notifications.CountUnread(ctx, caller.ID)
	if err != nil {
		return 0, apperrors.NewInternalError(err)
	}
	return count, nil
}

// MarkRead flags one of the caller's notifications as read. Notifications
// of other users are reported as missing.
func (n *NotificationService) MarkRead(ctx context.Context, caller *domain.User, id string) (*domain.Notification, error) {
	if caller == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	record, err := n.notifications.MarkRead(ctx, id, caller.ID)
	if err != nil {
		return nil, mapRepoError("notification", id, err)
	}
	return record, nil
}

// MarkAllRead flags every unread notification of the caller as read.
func (n *NotificationService) MarkAllRead(ctx context.Context, caller *domain.User) (int64, error) {
	if caller == nil {
		return 0, apperrors.NewUnauthorized("authentication required")
	}
	updated, err := n.notifications.MarkAllRead(ctx, caller.ID)
	if err != nil {
		return 0, apperrors.NewInternalError(err)
	}
	return updated, nil
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	link := domain.TicketLink(event.TicketID)

	admins, err := n.users.ListByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	var errs []error
	message := fmt.Sprintf("New ticket %q created by %s", payload.Title, event.Actor.Name)
	for _, admin := range admins {
		if admin.ID == event.Actor.ID {
			continue
		}
		if _, err := n.Notify(ctx, admin.ID, message, link); err != nil {
			errs = append(errs, err)
		}
	}

	mentioned, err := n.resolver.ResolveOthers(ctx, payload.Description, event.Actor.ID)
	if err != nil {
		errs = append(errs, fmt.Errorf("resolve mentions: %w", err))
	}
	message = fmt.Sprintf("%s mentioned you in ticket %q", event.Actor.Name, payload.Title)
	for _, user := range mentioned {
		errs = append(errs, n.notifyAndMail(ctx, user.Ref(), message, link))
	}
	return errors.Join(errs...)
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	if payload.CreatorID == "" || payload.CreatorID == event.Actor.ID {
		return nil
	}
	creator, err := n.users.GetByID(ctx, payload.CreatorID)
	if err != nil {
		return fmt.Errorf("load creator %s: %w", payload.CreatorID, err)
	}
	message := fmt.Sprintf("Status of %q was updated to %s by %s", payload.Title, payload.NewStatus, event.Actor.Name)
	return n.notifyAndMail(ctx, creator.Ref(), message, domain.TicketLink(event.TicketID))
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	if payload.Assignee == nil {
		return nil
	}
	message := fmt.Sprintf("%s assigned you a new ticket: %q", event.Actor.Name, payload.Title)
	return n.notifyAndMail(ctx, *payload.Assignee, message, domain.TicketLink(event.TicketID))
}

func (n *NotificationService) handleCommentAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CommentAddedPayload)
	if !ok {
		return unexpectedPayload(event)
	}
	link := domain.TicketLink(event.TicketID)
	var errs []error

	mentioned, err := n.resolver.ResolveOthers(ctx, payload.Text, event.Actor.ID)
	if err != nil {
		errs = append(errs, fmt.Errorf("resolve mentions: %w", err))
	}
	message := fmt.Sprintf("%s mentioned you in a comment on ticket %q", event.Actor.Name, payload.Title)
	for _, user := range mentioned {
		errs = append(errs, n.notifyAndMail(ctx, user.Ref(), message, link))
	}

	// Independent of mentions: the creator may get both notifications.
	if payload.CreatorID != "" && payload.CreatorID != event.Actor.ID {
		message := fmt.Sprintf("%s commented on your ticket %q", event.Actor.Name, payload.Title)
		if _, err := n.Notify(ctx, payload.CreatorID, message, link); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// notifyAndMail stores the in-app notification and then emails the
// recipient. Mail failures are logged, never returned.
func (n *NotificationService) notifyAndMail(ctx context.Context, recipient domain.UserRef, message, link string) error {
	if _, err := n.Notify(ctx, recipient.ID, message, link); err != nil {
		return err
	}
	n.mail(ctx, recipient.Email, message, link)
	return nil
}

func (n *NotificationService) mail(ctx context.Context, to, message, link string) {
	if n.mailer == nil || !n.settings.EmailEnabled || to == "" {
		return
	}
	msg := mailer.Message{
		To:      to,
		Subject: n.subject(message),
		Body:    message + "\n\n" + strings.TrimRight(n.settings.AppURL, "/") + link + "\n",
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		n.logger.Warn("email delivery failed", zap.String("to", to), zap.Error(err))
	}
}

func (n *NotificationService) subject(message string) string {
	if n.settings.SubjectPrefix == "" {
		return message
	}
	return n.settings.SubjectPrefix + " " + message
}

func unexpectedPayload(event events.Event) error {
	return fmt.Errorf("event %s: unexpected payload %T", event.Type, event.Payload)
}
