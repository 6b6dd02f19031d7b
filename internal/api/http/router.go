package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/taskpilot/tracker/internal/api/http/handlers"
	"github.com/taskpilot/tracker/internal/auth"
	"github.com/taskpilot/tracker/internal/observability"
)

// multipartOverhead is added to the upload ceiling to size the body limit.
const multipartOverhead = 1 << 20

// NewApp builds the fiber application with the global middleware chain.
// maxUpload sizes the request body limit.
func NewApp(appName string, maxUpload int64, logger *zap.Logger, metrics *observability.Metrics, cfg MiddlewareConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               appName,
		BodyLimit:             int(maxUpload) + multipartOverhead,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(logger, cfg.Development, maxUpload),
	})
	RegisterMiddlewares(app, logger, metrics, cfg)
	return app
}

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Comments       *handlers.CommentsHandler
	Notifications  *handlers.NotificationsHandler
	Users          *handlers.UsersHandler
	Dashboard      *handlers.DashboardHandler
	AuthMiddleware *auth.AuthMiddleware
	// UploadDir is served read-only under /uploads when set.
	UploadDir string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	if cfg.UploadDir != "" {
		app.Static("/uploads", cfg.UploadDir, fiber.Static{Browse: false})
	}

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)

	protected := api.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	admin := auth.RequireAdmin()

	tickets := protected.Group("/tickets")
	tickets.Get("/", cfg.Tickets.List)
	tickets.Post("/", cfg.Tickets.Create)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Put("/:id", cfg.Tickets.Update)
	tickets.Delete("/:id", admin, cfg.Tickets.Delete)
	tickets.Put("/:id/assign", admin, cfg.Tickets.Assign)
	tickets.Post("/:id/upload", cfg.Tickets.Upload)
	tickets.Get("/:id/comments", cfg.Comments.List)
	tickets.Post("/:id/comments", cfg.Comments.Create)

	notifications := protected.Group("/notifications")
	notifications.Get("/", cfg.Notifications.List)
	notifications.Put("/:id/read", cfg.Notifications.MarkRead)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)

	users := protected.Group("/users", admin)
	users.Get("/", cfg.Users.List)
	users.Put("/:id/role", cfg.Users.UpdateRole)
	users.Delete("/:id", cfg.Users.Delete)

	protected.Get("/dashboard/stats", admin, cfg.Dashboard.Stats)
}
