package mention

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/taskpilot/tracker/internal/domain"
)

type stubLookup struct {
	users []domain.User
	asked []string
	err   error
}

func (s *stubLookup) FindByEmails(_ context.Context, emails []string) ([]domain.User, error) {
	s.asked = append(s.asked, emails...)
	if s.err != nil {
		return nil, s.err
	}
	want := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		want[e] = struct{}{}
	}
	var out []domain.User
	for _, u := range s.users {
		if _, ok := want[u.Email]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestExtract(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{"none", "no mentions here, mail bob@example.com directly", nil},
		{"single", "ping @bob@example.com please", []string{"bob@example.com"}},
		{"start of text", "@bob@example.com look", []string{"bob@example.com"}},
		{"multiple", "@alice@example.com and @carol@corp.io", []string{"alice@example.com", "carol@corp.io"}},
		{"duplicates", "@bob@example.com @bob@example.com", []string{"bob@example.com"}},
		{"case sensitive", "@Bob@example.com @bob@example.com", []string{"Bob@example.com", "bob@example.com"}},
		{"missing tld", "@bob@localhost", nil},
		{"trailing punctuation kept", "thanks @bob@example.com.", []string{"bob@example.com."}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.text)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Extract(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestResolveLooksUpDistinctEmails(t *testing.T) {
	lookup := &stubLookup{users: []domain.User{
		{ID: "1", Email: "alice@example.com"},
		{ID: "2", Email: "bob@example.com"},
	}}
	r := NewResolver(lookup)

	users, err := r.Resolve(context.Background(), "@bob@example.com @bob@example.com @ghost@example.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(users) != 1 || users[0].ID != "2" {
		t.Fatalf("unexpected users %+v", users)
	}
	sort.Strings(lookup.asked)
	if !reflect.DeepEqual(lookup.asked, []string{"bob@example.com", "ghost@example.com"}) {
		t.Fatalf("lookup asked for %v", lookup.asked)
	}
}

func TestResolveSkipsLookupWithoutMentions(t *testing.T) {
	lookup := &stubLookup{err: errors.New("should not be called")}
	users, err := NewResolver(lookup).Resolve(context.Background(), "plain text")
	if err != nil || users != nil {
		t.Fatalf("got %v, %v", users, err)
	}
	if len(lookup.asked) != 0 {
		t.Fatal("lookup called without mentions")
	}
}

func TestResolveOthersDropsAuthor(t *testing.T) {
	lookup := &stubLookup{users: []domain.User{
		{ID: "1", Email: "alice@example.com"},
		{ID: "2", Email: "bob@example.com"},
	}}
	users, err := NewResolver(lookup).ResolveOthers(context.Background(), "@alice@example.com @bob@example.com", "1")
	if err != nil {
		t.Fatalf("ResolveOthers: %v", err)
	}
	if len(users) != 1 || users[0].ID != "2" {
		t.Fatalf("unexpected users %+v", users)
	}
}
