package domain

import "time"

// Comment is a message in a ticket's discussion thread.
type Comment struct {
	ID        string
	TicketID  string
	Author    UserRef
	Text      string
	CreatedAt time.Time
}
