package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/taskpilot/tracker/internal/api/dto"
	"github.com/taskpilot/tracker/internal/auth"
	"github.com/taskpilot/tracker/internal/service"
	apperrors "github.com/taskpilot/tracker/pkg/util/errorutil"
)

// UsersHandler exposes account administration.
type UsersHandler struct {
	service *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(userService *service.UserService) *UsersHandler {
	return &UsersHandler{service: userService}
}

// List GET /api/users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	users, err := h.service.List(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(dto.List(dto.NewUserResponses(users), len(users)))
}

// UpdateRole PUT /api/users/:id/role.
func (h *UsersHandler) UpdateRole(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	var req dto.RoleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}
	updated, err := h.service.UpdateRole(c.UserContext(), user, c.Params("id"), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(dto.NewUserResponse(updated)))
}

// Delete DELETE /api/users/:id.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), user, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(dto.OK(fiber.Map{"message": "user removed"}))
}
