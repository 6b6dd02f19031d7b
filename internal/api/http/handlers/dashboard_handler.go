package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/taskpilot/tracker/internal/api/dto"
	"github.com/taskpilot/tracker/internal/auth"
	"github.com/taskpilot/tracker/internal/service"
)

// DashboardHandler serves admin statistics.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler constructs handler.
func NewDashboardHandler(dashboardService *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: dashboardService}
}

// Stats GET /api/dashboard/stats.
func (h *DashboardHandler) Stats(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	stats, err := h.service.Stats(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(dto.NewStatsResponse(stats)))
}
