package policy_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/taskpilot/tracker/internal/domain"
	"github.com/taskpilot/tracker/internal/policy"
	apperrors "github.com/taskpilot/tracker/pkg/util/errorutil"
)

var (
	admin    = &domain.User{ID: "admin", Role: domain.RoleAdmin}
	creator  = &domain.User{ID: "creator", Role: domain.RoleUser}
	assignee = &domain.User{ID: "assignee", Role: domain.RoleUser}
	outsider = &domain.User{ID: "outsider", Role: domain.RoleUser}
)

func ticket() *domain.Ticket {
	return &domain.Ticket{
		ID:        "t-1",
		CreatedBy: domain.UserRef{ID: creator.ID},
		Assignee:  &domain.UserRef{ID: assignee.ID},
	}
}

func TestCanView(t *testing.T) {
	cases := []struct {
		name string
		user *domain.User
		want bool
	}{
		{"admin", admin, true},
		{"creator", creator, true},
		{"assignee", assignee, true},
		{"outsider", outsider, false},
		{"anonymous", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.CanView(tc.user, ticket()); got != tc.want {
				t.Fatalf("CanView = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanViewUnassignedTicket(t *testing.T) {
	tk := ticket()
	tk.Assignee = nil
	if policy.CanView(assignee, tk) {
		t.Fatal("former assignee should lose access once unassigned")
	}
	if !policy.CanView(creator, tk) {
		t.Fatal("creator must keep access")
	}
}

func TestAdminOnlyActions(t *testing.T) {
	for _, action := range []policy.Action{policy.ActionAssign, policy.ActionDelete} {
		if !policy.Can(admin, action, ticket()) {
			t.Errorf("admin should be allowed to %s", action)
		}
		for _, u := range []*domain.User{creator, assignee, outsider} {
			if policy.Can(u, action, ticket()) {
				t.Errorf("%s should not be allowed to %s", u.ID, action)
			}
		}
	}
}

func TestAuthorizeErrors(t *testing.T) {
	err := policy.Authorize(outsider, policy.ActionView, ticket())
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.HTTPStatus != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	err = policy.Authorize(nil, policy.ActionView, ticket())
	if !errors.As(err, &domainErr) || domainErr.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := policy.Authorize(creator, policy.ActionUpdate, ticket()); err != nil {
		t.Fatalf("creator update: %v", err)
	}
}

func TestListScope(t *testing.T) {
	if scope := policy.ListScope(admin); scope != "" {
		t.Errorf("admin scope = %q", scope)
	}
	if scope := policy.ListScope(creator); scope != creator.ID {
		t.Errorf("user scope = %q", scope)
	}
}

func TestRequireAdmin(t *testing.T) {
	if err := policy.RequireAdmin(admin); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if err := policy.RequireAdmin(creator); err == nil {
		t.Fatal("expected error for non-admin")
	}
}
