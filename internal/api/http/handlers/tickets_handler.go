package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/taskpilot/tracker/internal/api/dto"
	"github.com/taskpilot/tracker/internal/auth"
	"github.com/taskpilot/tracker/internal/domain"
	"github.com/taskpilot/tracker/internal/service"
	apperrors "github.com/taskpilot/tracker/pkg/util/errorutil"
)

// AttachmentField is the multipart field carrying an upload.
const AttachmentField = "attachment"

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// Create POST /api/tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}
	due, err := domain.ParseDueDate(req.DueDate)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), map[string]any{"field": "dueDate"})
	}
	ticket, err := h.service.Create(c.UserContext(), user, domain.NewTicketInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Type:        req.Type,
		DueDate:     due,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.OK(dto.NewTicketResponse(ticket)))
}

// List GET /api/tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	input, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.List(c.UserContext(), user, input)
	if err != nil {
		return err
	}
	return c.JSON(dto.List(dto.NewTicketResponses(tickets), len(tickets)))
}

// Get GET /api/tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(dto.NewTicketResponse(ticket)))
}

// Update PUT /api/tickets/:id.
func (h *TicketsHandler) Update(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}
	changes := domain.TicketChanges{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Type:        req.Type,
	}
	if changes.DueDate, err = parseDueDateChange(req.DueDate); err != nil {
		return err
	}
	ticket, err := h.service.Update(c.UserContext(), user, c.Params("id"), service.TicketUpdateInput{
		Changes: changes,
		Version: req.Version,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(dto.NewTicketResponse(ticket)))
}

// Delete DELETE /api/tickets/:id.
func (h *TicketsHandler) Delete(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), user, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(dto.OK(fiber.Map{"message": "ticket removed"}))
}

// Assign PUT /api/tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewBadRequest("invalid payload")
	}
	assignee := ""
	if req.UserID != nil {
		assignee = *req.UserID
	}
	ticket, err := h.service.Assign(c.UserContext(), user, c.Params("id"), assignee)
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(dto.NewTicketResponse(ticket)))
}

// Upload POST /api/tickets/:id/upload.
func (h *TicketsHandler) Upload(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	header, err := c.FormFile(AttachmentField)
	if err != nil {
		if errors.Is(err, fasthttp.ErrMissingFile) || errors.Is(err, fasthttp.ErrNoMultipartForm) {
			return apperrors.NewBadRequest("no file uploaded")
		}
		return apperrors.NewBadRequest("invalid multipart form")
	}
	file, err := header.Open()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer file.Close()

	attachment, err := h.service.UploadAttachment(c.UserContext(), user, c.Params("id"), &service.UploadInput{
		OriginalName: header.Filename,
		ContentType:  header.Header.Get(fiber.HeaderContentType),
		Size:         header.Size,
		Content:      file,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.OK(dto.NewAttachmentResponse(attachment)))
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListInput, error) {
	input := service.TicketListInput{
		Search:   c.Query("q"),
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Type:     c.Query("type"),
		Assignee: c.Query("assignee"),
	}
	if input.Search == "" {
		input.Search = c.Query("search")
	}
	var err error
	if input.Limit, err = queryInt(c, "limit"); err != nil {
		return input, err
	}
	if input.Offset, err = queryInt(c, "offset"); err != nil {
		return input, err
	}
	return input, nil
}

func queryInt(c *fiber.Ctx, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewValidationError(key+" must be a non-negative integer", map[string]any{key: raw})
	}
	return n, nil
}

// parseDueDateChange distinguishes an absent dueDate (no change) from
// null or "" (clear) and a date string (set).
func parseDueDateChange(raw []byte) (*domain.DueDateChange, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if bytes.Equal(raw, []byte("null")) {
		return &domain.DueDateChange{}, nil
	}
	value, err := strconv.Unquote(string(raw))
	if err != nil {
		return nil, apperrors.NewValidationError("dueDate must be a string", map[string]any{"field": "dueDate"})
	}
	due, err := domain.ParseDueDate(value)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": "dueDate"})
	}
	return &domain.DueDateChange{Value: due}, nil
}
