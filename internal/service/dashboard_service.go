package service

import (
	"context"

	"github.com/taskpilot/tracker/internal/domain"
	"github.com/taskpilot/tracker/internal/policy"
	"github.com/taskpilot/tracker/internal/repository"
	apperrors "github.com/taskpilot/tracker/pkg/util/errorutil"
)

// RecentTicketsLimit is how many tickets the dashboard shows.
const RecentTicketsLimit = 5

// DashboardService computes administrator statistics.
type DashboardService struct {
	tickets repository.TicketRepository
	users   repository.UserRepository
}

// NewDashboardService constructs the service.
func NewDashboardService(tickets repository.TicketRepository, users repository.UserRepository) *DashboardService {
	return &DashboardService{tickets: tickets, users: users}
}

// Stats returns totals, a per-status breakdown in board order and the
// newest tickets.
func (s *DashboardService) Stats(ctx context.Context, actor *domain.User) (*domain.DashboardStats, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}
	totalTickets, err := s.tickets.Count(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	totalUsers, err := s.users.Count(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	counts, err := s.tickets.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	recent, err := s.tickets.List(ctx, repository.TicketFilter{Limit: RecentTicketsLimit})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	byStatus := make(map[domain.TicketStatus]int, len(counts))
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	breakdown := make([]domain.StatusCount, 0, len(domain.TicketStatuses))
	for _, status := range domain.TicketStatuses {
		breakdown = append(breakdown, domain.StatusCount{Status: status, Count: byStatus[status]})
	}
	return &domain.DashboardStats{
		TotalTickets:    totalTickets,
		TotalUsers:      totalUsers,
		TicketsByStatus: breakdown,
		RecentTickets:   recent,
	}, nil
}
