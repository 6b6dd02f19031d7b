package domain

import (
	"strings"
	"time"
)

// Notification is an in-app message for a single recipient. Clients poll
// for new notifications; there is no push channel.
type Notification struct {
	ID          string
	RecipientID string
	Message     string
	Link        string
	Read        bool
	CreatedAt   time.Time
}

// RefersToTicket reports whether the notification links to ticketID.
func (n *Notification) RefersToTicket(ticketID string) bool {
	return ticketID != "" && strings.TrimSuffix(n.Link, "/") == TicketLink(ticketID)
}
