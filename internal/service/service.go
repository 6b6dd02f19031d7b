// Package service holds the application workflows. Services authorize
// through the policy package, persist through repository interfaces and
// publish events once writes are durable.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/taskpilot/tracker/internal/domain"
	"github.com/taskpilot/tracker/internal/events"
	"github.com/taskpilot/tracker/internal/repository"
	apperrors "github.com/taskpilot/tracker/pkg/util/errorutil"
)

// Clock returns the current time. Services default to UTC wall time.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return utcNow
	}
	return c
}

// mapRepoError converts repository sentinels into API errors for resource.
func mapRepoError(resource, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	case errors.Is(err, repository.ErrStaleVersion):
		return apperrors.NewStaleVersion(resource, map[string]any{"id": id})
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(resource+" already exists", nil)
	}
	return apperrors.NewInternalError(err)
}

// invalidInput turns aggregate validation failures into 400s.
func invalidInput(err error) error {
	if errors.Is(err, domain.ErrInvalidTicket) {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	return apperrors.MapError(err)
}

func publish(ctx context.Context, d events.Dispatcher, eventType events.EventType, ticketID string, actor domain.UserRef, at time.Time, payload any) {
	if d == nil {
		return
	}
	d.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	})
}
