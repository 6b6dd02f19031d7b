package domain

// StatusCount is the number of tickets in one status.
type StatusCount struct {
	Status TicketStatus
	Count  int
}

// DashboardStats aggregates system wide figures for administrators.
type DashboardStats struct {
	TotalTickets    int
	TotalUsers      int
	TicketsByStatus []StatusCount
	RecentTickets   []Ticket
}
