package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/taskpilot/tracker/internal/api/dto"
	"github.com/taskpilot/tracker/internal/auth"
	"github.com/taskpilot/tracker/internal/service"
)

// NotificationsHandler serves the caller's inbox.
type NotificationsHandler struct {
	service *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{service: notificationService}
}

// List GET /api/notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	items, err := h.service.List(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(dto.List(dto.NewNotificationResponses(items), len(items)))
}

// MarkRead PUT /api/notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	n, err := h.service.MarkRead(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(dto.NewNotificationResponse(n)))
}

// MarkAllRead POST /api/notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	if _, err := h.service.MarkAllRead(c.UserContext(), user); err != nil {
		return err
	}
	return c.JSON(dto.OK(fiber.Map{"message": "all notifications marked as read"}))
}
