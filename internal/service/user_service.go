package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/taskpilot/tracker/internal/domain"
	"github.com/taskpilot/tracker/internal/events"
	"github.com/taskpilot/tracker/internal/policy"
	"github.com/taskpilot/tracker/internal/repository"
	apperrors "github.com/taskpilot/tracker/pkg/util/errorutil"
)

// UserService implements account administration.
type UserService struct {
	users      repository.UserRepository
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

// UserDependencies bundles collaborators for the user service.
type UserDependencies struct {
	UserRepo   repository.UserRepository
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      Clock
}

// maxUnassignRounds bounds how often Delete retries when assignments keep
// arriving while the account is being removed.
const maxUnassignRounds = 3

// NewUserService constructs the service.
func NewUserService(deps UserDependencies) *UserService {
	return &UserService{
		users:      deps.UserRepo,
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrDefault(deps.Clock),
	}
}

// List returns every account.
func (s *UserService) List(ctx context.Context, actor *domain.User) ([]domain.User, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return users, nil
}

// UpdateRole changes the role of an account.
func (s *UserService) UpdateRole(ctx context.Context, actor *domain.User, id, role string) (*domain.User, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}
	next := domain.Role(strings.TrimSpace(role))
	if !next.Valid() {
		return nil, apperrors.NewBadRequest("invalid role")
	}
	user, err := s.users.UpdateRole(ctx, id, next)
	if err != nil {
		return nil, mapRepoError("user", id, err)
	}
	s.logger.Info("user role changed",
		zap.String("user_id", id),
		zap.String("role", string(next)),
		zap.String("actor", actor.Email))
	return user, nil
}

// Delete removes an account. Admins cannot delete themselves, and users
// who still own tickets must keep their account. Tickets assigned to the
// user are unassigned first, each with its own history entry.
func (s *UserService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if err := policy.RequireAdmin(actor); err != nil {
		return err
	}
	if id == actor.ID {
		return apperrors.NewBadRequest("you cannot delete your own account")
	}
	if _, err := s.users.GetByID(ctx, id); err != nil {
		return mapRepoError("user", id, err)
	}
	owned, err := s.tickets.List(ctx, repository.TicketFilter{CreatedBy: id, Limit: 1})
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if len(owned) > 0 {
		return ownsTickets(id)
	}

	unassigned := 0
	for round := 1; ; round++ {
		n, err := s.unassignAll(ctx, actor, id)
		unassigned += n
		if err != nil {
			return err
		}
		err = s.users.Delete(ctx, id)
		if errors.Is(err, repository.ErrStillAssigned) && round < maxUnassignRounds {
			continue
		}
		if errors.Is(err, repository.ErrReferenced) {
			return ownsTickets(id)
		}
		if errors.Is(err, repository.ErrStillAssigned) {
			return apperrors.NewStateConflict("user is still assigned to tickets", map[string]any{"id": id})
		}
		if err != nil {
			return mapRepoError("user", id, err)
		}
		break
	}
	s.logger.Info("user deleted",
		zap.String("user_id", id),
		zap.Int("unassigned_tickets", unassigned),
		zap.String("actor", actor.Email))
	return nil
}

// unassignAll clears the assignee of every ticket assigned to userID
// through the ticket aggregate; each ticket gains one history entry and a
// version bump.
func (s *UserService) unassignAll(ctx context.Context, actor *domain.User, userID string) (int, error) {
	assigned, err := s.tickets.List(ctx, repository.TicketFilter{Assignee: userID})
	if err != nil {
		return 0, apperrors.NewInternalError(err)
	}
	count := 0
	for i := range assigned {
		ok, err := s.unassign(ctx, actor, &assigned[i], userID)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (s *UserService) unassign(ctx context.Context, actor *domain.User, ticket *domain.Ticket, userID string) (bool, error) {
	for attempt := 0; attempt < maxUnassignRounds; attempt++ {
		if !ticket.IsAssignee(userID) {
			return false, nil
		}
		ticket.Assign(actor.Ref(), nil, s.now())
		err := s.tickets.Update(ctx, ticket)
		switch {
		case err == nil:
			publish(ctx, s.dispatcher, events.EventTicketAssigned, ticket.ID, actor.Ref(), ticket.UpdatedAt, events.TicketAssignedPayload{
				Title:      ticket.Title,
				PreviousID: userID,
			})
			return true, nil
		case errors.Is(err, repository.ErrNotFound):
			return false, nil
		case !errors.Is(err, repository.ErrStaleVersion):
			return false, mapRepoError("ticket", ticket.ID, err)
		}
		fresh, err := s.tickets.GetByID(ctx, ticket.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, mapRepoError("ticket", ticket.ID, err)
		}
		ticket = fresh
	}
	return false, apperrors.NewStaleVersion("ticket", map[string]any{"id": ticket.ID})
}

func ownsTickets(id string) error {
	return apperrors.NewStateConflict("user owns tickets", map[string]any{"id": id})
}
