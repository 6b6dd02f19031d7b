package sqlitestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/taskpilot/tracker/internal/domain"
	"github.com/taskpilot/tracker/internal/repository"
)

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db)
}

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func createUser(t *testing.T, s *repository.Store, name string, role domain.Role) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "hash",
		Role:         role,
		CreatedAt:    epoch,
	}
	if err := s.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func createTicket(t *testing.T, s *repository.Store, creator *domain.User, title string, at time.Time) *domain.Ticket {
	t.Helper()
	tk, err := domain.NewTicket(creator.Ref(), domain.NewTicketInput{Title: title, Description: "details of " + title}, at)
	if err != nil {
		t.Fatal(err)
	}
	tk.ID = uuid.NewString()
	if err := s.Tickets.Create(context.Background(), tk); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return tk
}

func TestUserEmailIsUnique(t *testing.T) {
	s := newTestStore(t)
	createUser(t, s, "alice", domain.RoleAdmin)
	dup := &domain.User{ID: uuid.NewString(), Name: "Alice 2", Email: "alice@example.com", PasswordHash: "x", Role: domain.RoleUser, CreatedAt: epoch}
	err := s.Users.Create(context.Background(), dup)
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestTicketRoundTripWithHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice", domain.RoleUser)
	tk := createTicket(t, s, alice, "Broken login", epoch)

	loaded, err := s.Tickets.GetByID(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded.CreatedBy.Name != "alice" || loaded.Status != domain.TicketStatusOpen {
		t.Fatalf("unexpected ticket %+v", loaded)
	}
	status := domain.TicketStatusResolved
	if _, err := loaded.Apply(alice.Ref(), domain.TicketChanges{Status: &status}, epoch.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.Tickets.Update(ctx, loaded); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if loaded.Version != 2 {
		t.Fatalf("version = %d", loaded.Version)
	}

	again, err := s.Tickets.GetByID(ctx, tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	history := again.History()
	if len(history) != 2 {
		t.Fatalf("history len = %d", len(history))
	}
	last := history[1]
	if last.Action != domain.ActionStatusChange || last.OldValue != "Open" || last.NewValue != "Resolved" {
		t.Fatalf("unexpected entry %+v", last)
	}
	if last.Actor.Name != "alice" {
		t.Fatalf("actor = %+v", last.Actor)
	}
}

func TestTicketUpdateRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice", domain.RoleUser)
	tk := createTicket(t, s, alice, "Race", epoch)

	first, _ := s.Tickets.GetByID(ctx, tk.ID)
	second, _ := s.Tickets.GetByID(ctx, tk.ID)

	title := "Race, first"
	if _, err := first.Apply(alice.Ref(), domain.TicketChanges{Title: &title}, epoch); err != nil {
		t.Fatal(err)
	}
	if err := s.Tickets.Update(ctx, first); err != nil {
		t.Fatalf("first update: %v", err)
	}

	title = "Race, second"
	if _, err := second.Apply(alice.Ref(), domain.TicketChanges{Title: &title}, epoch); err != nil {
		t.Fatal(err)
	}
	if err := s.Tickets.Update(ctx, second); !errors.Is(err, repository.ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}

	stored, _ := s.Tickets.GetByID(ctx, tk.ID)
	if stored.Title != "Race, first" || len(stored.History()) != 2 {
		t.Fatalf("stale write leaked: %q, %d entries", stored.Title, len(stored.History()))
	}
}

func TestTicketListFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice", domain.RoleUser)
	bob := createUser(t, s, "bob", domain.RoleUser)

	older := createTicket(t, s, alice, "Printer jam", epoch)
	newer := createTicket(t, s, alice, "100% CPU", epoch.Add(time.Hour))
	bobs := createTicket(t, s, bob, "Bob's ticket", epoch.Add(2*time.Hour))

	older.Assign(alice.Ref(), ptr(bob.Ref()), epoch)
	if err := s.Tickets.Update(ctx, older); err != nil {
		t.Fatal(err)
	}

	ids := func(ts []domain.Ticket) []string {
		out := make([]string, len(ts))
		for i, tk := range ts {
			out[i] = tk.ID
		}
		return out
	}
	cases := []struct {
		name   string
		filter repository.TicketFilter
		want   []string
	}{
		{"all newest first", repository.TicketFilter{}, []string{bobs.ID, newer.ID, older.ID}},
		{"visible to bob", repository.TicketFilter{VisibleTo: bob.ID}, []string{bobs.ID, older.ID}},
		{"unassigned", repository.TicketFilter{Assignee: repository.UnassignedFilter}, []string{bobs.ID, newer.ID}},
		{"assigned to bob", repository.TicketFilter{Assignee: bob.ID}, []string{older.ID}},
		{"search case insensitive", repository.TicketFilter{Search: "printer"}, []string{older.ID}},
		{"search literal percent", repository.TicketFilter{Search: "100%"}, []string{newer.ID}},
		{"status", repository.TicketFilter{Status: domain.TicketStatusResolved}, []string{}},
		{"limit offset", repository.TicketFilter{Limit: 1, Offset: 1}, []string{newer.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Tickets.List(ctx, tc.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			gotIDs := ids(got)
			if len(gotIDs) != len(tc.want) {
				t.Fatalf("got %v, want %v", gotIDs, tc.want)
			}
			for i := range gotIDs {
				if gotIDs[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", gotIDs, tc.want)
				}
			}
		})
	}
}

func TestTicketDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice", domain.RoleUser)
	tk := createTicket(t, s, alice, "Doomed", epoch)

	comment := &domain.Comment{ID: uuid.NewString(), TicketID: tk.ID, Author: alice.Ref(), Text: "hi", CreatedAt: epoch}
	if err := s.Comments.Create(ctx, comment); err != nil {
		t.Fatal(err)
	}
	if err := s.Tickets.Delete(ctx, tk.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Tickets.GetByID(ctx, tk.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	comments, err := s.Comments.ListByTicket(ctx, tk.ID)
	if err != nil || len(comments) != 0 {
		t.Fatalf("comments survived: %v %v", comments, err)
	}
	if err := s.Tickets.Delete(ctx, tk.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestNotificationsScopedToRecipient(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice", domain.RoleUser)
	bob := createUser(t, s, "bob", domain.RoleUser)

	for i, recipient := range []*domain.User{alice, alice, bob} {
		n := &domain.Notification{
			ID:          uuid.NewString(),
			RecipientID: recipient.ID,
			Message:     "hello",
			Link:        domain.TicketLink("t1"),
			CreatedAt:   epoch.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Notifications.Create(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.Notifications.ListByRecipient(ctx, alice.ID)
	if err != nil || len(list) != 2 {
		t.Fatalf("list = %v, %v", list, err)
	}
	if !list[0].CreatedAt.After(list[1].CreatedAt) {
		t.Fatal("expected newest first")
	}
	bobsList, _ := s.Notifications.ListByRecipient(ctx, bob.ID)
	if _, err := s.Notifications.MarkRead(ctx, bobsList[0].ID, alice.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("marking another user's notification: %v", err)
	}
	if n, _ := s.Notifications.MarkAllRead(ctx, alice.ID); n != 2 {
		t.Fatalf("mark all read = %d", n)
	}
	if unread, _ := s.Notifications.CountUnread(ctx, bob.ID); unread != 1 {
		t.Fatalf("bob unread = %d", unread)
	}
	if n, _ := s.Notifications.DeleteByLink(ctx, domain.TicketLink("t1")); n != 3 {
		t.Fatalf("deleted = %d", n)
	}
}

func TestUserDeleteRules(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice", domain.RoleUser)
	bob := createUser(t, s, "bob", domain.RoleUser)
	tk := createTicket(t, s, alice, "Owned", epoch)
	tk.Assign(alice.Ref(), ptr(bob.Ref()), epoch)
	if err := s.Tickets.Update(ctx, tk); err != nil {
		t.Fatal(err)
	}

	if err := s.Users.Delete(ctx, alice.ID); !errors.Is(err, repository.ErrReferenced) {
		t.Fatalf("expected ErrReferenced, got %v", err)
	}
	if err := s.Users.Delete(ctx, bob.ID); !errors.Is(err, repository.ErrStillAssigned) {
		t.Fatalf("expected ErrStillAssigned, got %v", err)
	}
	stored, err := s.Tickets.GetByID(ctx, tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Assignee == nil || stored.Assignee.ID != bob.ID || stored.Version != tk.Version {
		t.Fatalf("rejected delete touched the ticket: %+v v%d", stored.Assignee, stored.Version)
	}

	stored.Assign(alice.Ref(), nil, epoch.Add(time.Minute))
	if err := s.Tickets.Update(ctx, stored); err != nil {
		t.Fatal(err)
	}
	if err := s.Users.Delete(ctx, bob.ID); err != nil {
		t.Fatalf("delete bob: %v", err)
	}
	if err := s.Users.Delete(ctx, bob.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestTicketListLoadsHistoryAndAttachments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := createUser(t, s, "alice", domain.RoleUser)
	first := createTicket(t, s, alice, "First", epoch)
	second := createTicket(t, s, alice, "Second", epoch.Add(time.Hour))

	status := domain.TicketStatusInProgress
	if _, err := first.Apply(alice.Ref(), domain.TicketChanges{Status: &status}, epoch.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.Tickets.Update(ctx, first); err != nil {
		t.Fatal(err)
	}
	att := &domain.Attachment{
		ID:           uuid.NewString(),
		TicketID:     second.ID,
		Filename:     "attachment-1-1.txt",
		Path:         "/uploads/attachment-1-1.txt",
		OriginalName: "notes.txt",
		UploadedBy:   alice.ID,
		UploadedAt:   epoch.Add(3 * time.Hour),
	}
	if err := s.Tickets.AddAttachment(ctx, att); err != nil {
		t.Fatal(err)
	}

	listed, err := s.Tickets.List(ctx, repository.TicketFilter{CreatedBy: alice.ID})
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]*domain.Ticket{}
	for i := range listed {
		got[listed[i].ID] = &listed[i]
	}
	if got[first.ID] == nil || got[second.ID] == nil {
		t.Fatalf("listed %d tickets", len(listed))
	}
	if n := len(got[first.ID].History()); n != 2 {
		t.Errorf("first ticket history = %d entries, want 2", n)
	}
	if n := len(got[first.ID].Attachments); n != 0 {
		t.Errorf("first ticket attachments = %d, want 0", n)
	}
	if n := len(got[second.ID].History()); n != 1 {
		t.Errorf("second ticket history = %d entries, want 1", n)
	}
	if a := got[second.ID].Attachments; len(a) != 1 || a[0].OriginalName != "notes.txt" {
		t.Errorf("second ticket attachments = %+v", a)
	}
}

func ptr[T any](v T) *T { return &v }
