package dto

import (
	"time"

	"github.com/taskpilot/tracker/internal/domain"
)

// CommentResponse is one comment with its author.
type CommentResponse struct {
	ID        string          `json:"id"`
	TicketID  string          `json:"ticket"`
	Text      string          `json:"text"`
	User      UserRefResponse `json:"user"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NotificationResponse is one inbox entry.
type NotificationResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusCountResponse is one row of the status breakdown.
type StatusCountResponse struct {
	Status domain.TicketStatus `json:"status"`
	Count  int                 `json:"count"`
}

// RecentTicketResponse is a compact ticket for the dashboard.
type RecentTicketResponse struct {
	ID        string                `json:"id"`
	Title     string                `json:"title"`
	Status    domain.TicketStatus   `json:"status"`
	Priority  domain.TicketPriority `json:"priority"`
	CreatedBy UserRefResponse       `json:"createdBy"`
	CreatedAt time.Time             `json:"createdAt"`
}

// StatsResponse is the admin dashboard payload.
type StatsResponse struct {
	TotalTickets    int                    `json:"totalTickets"`
	TotalUsers      int                    `json:"totalUsers"`
	TicketsByStatus []StatusCountResponse  `json:"ticketsByStatus"`
	RecentTickets   []RecentTicketResponse `json:"recentTickets"`
}

// NewCommentResponse renders a comment.
func NewCommentResponse(c *domain.Comment) CommentResponse {
	return CommentResponse{
		ID:        c.ID,
		TicketID:  c.TicketID,
		Text:      c.Text,
		User:      userRef(c.Author),
		CreatedAt: c.CreatedAt,
	}
}

// NewCommentResponses renders a thread.
func NewCommentResponses(comments []domain.Comment) []CommentResponse {
	out := make([]CommentResponse, 0, len(comments))
	for i := range comments {
		out = append(out, NewCommentResponse(&comments[i]))
	}
	return out
}

// NewNotificationResponse renders a notification.
func NewNotificationResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Message:   n.Message,
		Link:      n.Link,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

// NewNotificationResponses renders an inbox.
func NewNotificationResponses(items []domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for i := range items {
		out = append(out, NewNotificationResponse(&items[i]))
	}
	return out
}

// NewStatsResponse renders dashboard figures.
func NewStatsResponse(s *domain.DashboardStats) StatsResponse {
	resp := StatsResponse{
		TotalTickets:    s.TotalTickets,
		TotalUsers:      s.TotalUsers,
		TicketsByStatus: make([]StatusCountResponse, 0, len(s.TicketsByStatus)),
		RecentTickets:   make([]RecentTicketResponse, 0, len(s.RecentTickets)),
	}
	for _, sc := range s.TicketsByStatus {
		resp.TicketsByStatus = append(resp.TicketsByStatus, StatusCountResponse{Status: sc.Status, Count: sc.Count})
	}
	for _, t := range s.RecentTickets {
		resp.RecentTickets = append(resp.RecentTickets, RecentTicketResponse{
			ID:        t.ID,
			Title:     t.Title,
			Status:    t.Status,
			Priority:  t.Priority,
			CreatedBy: userRef(t.CreatedBy),
			CreatedAt: t.CreatedAt,
		})
	}
	return resp
}
