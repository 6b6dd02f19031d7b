// Package mention finds "@<email>" mentions in free text and maps them
// to registered users.
package mention

import (
	"context"
	"regexp"

	"github.com/taskpilot/tracker/internal/domain"
)

// mentionPattern matches an email address prefixed by the "@" marker,
// e.g. "@alice@example.com". The capture is the address itself.
var mentionPattern = regexp.MustCompile(`@(\S+@\S+\.\S+)`)

// UserLookup finds users by exact email.
type UserLookup interface {
	FindByEmails(ctx context.Context, emails []string) ([]domain.User, error)
}

// Resolver turns mention tokens into users.
type Resolver struct {
	users UserLookup
}

// NewResolver builds a resolver backed by users.
func NewResolver(users UserLookup) *Resolver {
	return &Resolver{users: users}
}

// Extract returns the distinct mentioned addresses in order of first
// appearance. Comparison is case sensitive.
func Extract(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	emails := make([]string, 0, len(matches))
	for _, m := range matches {
		email := m[1]
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		emails = append(emails, email)
	}
	return emails
}

// Resolve returns the users mentioned in text. The order is unspecified
// and the author is not filtered out; callers drop self-mentions.
func (r *Resolver) Resolve(ctx context.Context, text string) ([]domain.User, error) {
	emails := Extract(text)
	if len(emails) == 0 {
		return nil, nil
	}
	return r.users.FindByEmails(ctx, emails)
}

// ResolveOthers is Resolve without the user identified by authorID.
func (r *Resolver) ResolveOthers(ctx context.Context, text, authorID string) ([]domain.User, error) {
	users, err := r.Resolve(ctx, text)
	if err != nil {
		return nil, err
	}
	others := users[:0]
	for _, u := range users {
		if u.ID == authorID {
			continue
		}
		others = append(others, u)
	}
	return others, nil
}
