// Package policy holds the access rules for tickets. Every service asks
// this package instead of repeating role or ownership checks.
package policy

import (
	"github.com/taskpilot/tracker/internal/domain"
	apperrors "github.com/taskpilot/tracker/pkg/util/errorutil"
)

// Action describes the kind of operation a user wants to perform on a ticket.
type Action string

const (
	ActionView    Action = "view"
	ActionList    Action = "list"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionComment Action = "comment"
	ActionUpload  Action = "upload"
	ActionAssign  Action = "assign"
	ActionDelete  Action = "delete"
)

// CanView reports whether user may read ticket: admins see everything,
// everyone else only tickets they opened or are assigned to.
func CanView(user *domain.User, ticket *domain.Ticket) bool {
	if user == nil || ticket == nil {
		return false
	}
	return user.IsAdmin() || ticket.IsCreator(user.ID) || ticket.IsAssignee(user.ID)
}

// CanEdit reports whether user may change fields, comment or upload files.
// Editing is allowed exactly where viewing is.
func CanEdit(user *domain.User, ticket *domain.Ticket) bool {
	return CanView(user, ticket)
}

// Can evaluates action for user. ticket may be nil for list and create.
func Can(user *domain.User, action Action, ticket *domain.Ticket) bool {
	if user == nil {
		return false
	}
	switch action {
	case ActionList, ActionCreate:
		return true
	case ActionView:
		return CanView(user, ticket)
	case ActionUpdate, ActionComment, ActionUpload:
		return CanEdit(user, ticket)
	case ActionAssign, ActionDelete:
		return user.IsAdmin()
	}
	return false
}

// Authorize is Can with a Forbidden error for denied requests.
func Authorize(user *domain.User, action Action, ticket *domain.Ticket) error {
	if user == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if Can(user, action, ticket) {
		return nil
	}
	if action == ActionAssign || action == ActionDelete {
		return apperrors.NewForbidden("admin role required")
	}
	return apperrors.NewForbidden("not authorized to access this ticket")
}

// ListScope narrows ticket listings to what user can see. An empty
// string means no restriction.
func ListScope(user *domain.User) string {
	if user == nil || user.IsAdmin() {
		return ""
	}
	return user.ID
}

// RequireAdmin fails with Forbidden unless user is an admin.
func RequireAdmin(user *domain.User) error {
	if user == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if !user.IsAdmin() {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}
