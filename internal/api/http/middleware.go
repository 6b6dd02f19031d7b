package http

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/taskpilot/tracker/internal/api/dto"
	"github.com/taskpilot/tracker/internal/observability"
	"github.com/taskpilot/tracker/internal/service"
	apperrors "github.com/taskpilot/tracker/pkg/util/errorutil"
)

// MiddlewareConfig tunes the global middleware chain.
type MiddlewareConfig struct {
	AllowedOrigins string
	Timeout        time.Duration
	// Development exposes stack traces of 5xx responses.
	Development bool
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, cfg MiddlewareConfig) {
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics, cfg.Development))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))
	if cfg.Timeout > 0 {
		app.Use(requestTimeoutMiddleware(cfg.Timeout))
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// ErrorHandler renders errors that escape the middleware chain, such as
// body limit violations raised by fiber itself. Oversized bodies are
// reported like oversized uploads.
func ErrorHandler(logger *zap.Logger, development bool, maxUpload int64) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if bodyTooLarge(err) {
			err = service.FileTooLarge(maxUpload)
		}
		return writeError(c, logger, err, "", development)
	}
}

func bodyTooLarge(err error) bool {
	if errors.Is(err, fasthttp.ErrBodyTooLarge) {
		return true
	}
	var fiberErr *fiber.Error
	return errors.As(err, &fiberErr) && fiberErr.Code == fiber.StatusRequestEntityTooLarge
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics, development bool) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		var stack string
		defer func() {
			if r := recover(); r != nil {
				stack = string(debug.Stack())
				logger.Error("panic recovered", zap.Any("panic", r), zap.String("stack", stack))
				err = apperrors.NewInternalError(fmt.Errorf("panic: %v", r))
			}
			if err != nil {
				domainErr := apperrors.ToDomainError(err)
				metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)
				err = writeError(c, logger, domainErr, stack, development)
			}
		}()
		return c.Next()
	}
}

func writeError(c *fiber.Ctx, logger *zap.Logger, err error, stack string, development bool) error {
	domainErr := apperrors.ToDomainError(err)
	body := dto.ErrorBody{
		Success: false,
		Error:   domainErr.Message,
		Code:    domainErr.Code,
		Details: domainErr.Details,
	}
	if domainErr.HTTPStatus >= fiber.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(domainErr))
		if development {
			if stack == "" {
				stack = domainErr.Error()
			}
			body.Stack = stack
		}
	}
	return c.Status(domainErr.HTTPStatus).JSON(body)
}
