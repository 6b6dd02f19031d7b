package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/taskpilot/tracker/internal/api/http"
	"github.com/taskpilot/tracker/internal/api/http/handlers"
	"github.com/taskpilot/tracker/internal/auth"
	"github.com/taskpilot/tracker/internal/config"
	"github.com/taskpilot/tracker/internal/events"
	"github.com/taskpilot/tracker/internal/mailer"
	"github.com/taskpilot/tracker/internal/mention"
	"github.com/taskpilot/tracker/internal/observability"
	"github.com/taskpilot/tracker/internal/persistence"
	"github.com/taskpilot/tracker/internal/repository"
	"github.com/taskpilot/tracker/internal/repository/sqlitestore"
	"github.com/taskpilot/tracker/internal/service"
	"github.com/taskpilot/tracker/internal/storage"
	"github.com/taskpilot/tracker/internal/worker"
)

func main() {
	envFile := pflag.String("env-file", ".env", "optional dotenv file to load before reading the environment")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	addr := pflag.String("addr", "", "override the HTTP bind address (host:port)")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.IsDevelopment())
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *migrateOnly, *addr); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrateOnly bool, addr string) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	if migrateOnly {
		logger.Info("migrations applied; exiting")
		return nil
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	blobs, err := storage.NewLocalStore(cfg.Storage.UploadDir, cfg.Storage.PublicPrefix, cfg.Storage.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("init upload storage: %w", err)
	}

	notifier, mailWorker := buildMailer(cfg, redis, logger)
	if err := notifier.Init(ctx); err != nil {
		return fmt.Errorf("init mailer: %w", err)
	}
	mailWorker.Start(ctx)
	defer mailWorker.Stop()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLMinutes)
	dispatcher := events.NewInMemoryDispatcher(logger)

	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo:   store.Users,
		Tokens:     tokens,
		BcryptCost: cfg.Auth.BcryptCost,
		Logger:     logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:       store.Tickets,
		UserRepo:         store.Users,
		NotificationRepo: store.Notifications,
		Blobs:            blobs,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	commentService := service.NewCommentService(service.CommentDependencies{
		CommentRepo: store.Comments,
		TicketRepo:  store.Tickets,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: store.Notifications,
		UserRepo:         store.Users,
		Resolver:         mention.NewResolver(store.Users),
		Mailer:           notifier,
		Dispatcher:       dispatcher,
		Logger:           logger,
		Settings: service.NotificationSettings{
			AppURL:        cfg.Notification.AppURL,
			SubjectPrefix: cfg.Mail.SubjectPrefix,
			EmailEnabled:  cfg.Notification.EmailEnabled,
		},
	})
	notificationService.RegisterHandlers()
	userService := service.NewUserService(service.UserDependencies{
		UserRepo:   store.Users,
		TicketRepo: store.Tickets,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	metrics := observability.NewMetrics()
	app := httptransport.NewApp(cfg.App.Name, cfg.Storage.MaxUploadBytes, logger, metrics, httptransport.MiddlewareConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Timeout:        cfg.HTTP.RequestTimeout(),
		Development:    cfg.App.IsDevelopment(),
	})

	checks := []handlers.Check{{Name: cfg.Database.Driver, Ping: store.Ping}}
	if redis != nil {
		checks = append(checks, handlers.Check{Name: "redis", Ping: redis.Ping})
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, checks...),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Comments:       handlers.NewCommentsHandler(commentService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		Users:          handlers.NewUsersHandler(userService),
		Dashboard:      handlers.NewDashboardHandler(service.NewDashboardService(store.Tickets, store.Users)),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Users, logger),
		UploadDir:      blobs.Dir(),
	})

	if addr == "" {
		addr = cfg.App.Addr()
	}
	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr), zap.String("db", cfg.Database.Driver))
		listenErr <- app.Listen(addr)
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("fiber listen: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}
	return app.ShutdownWithTimeout(10 * time.Second)
}

// openStore connects the configured backend and applies its schema.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repository.Store, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := persistence.OpenSQLite(cfg.SQLite, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlitestore.Migrate(db); err != nil {
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return sqlitestore.New(db), closeFn, nil
	case config.DriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, nil, err
			}
		}
		return repository.NewPostgresStore(pg.PoolHandle()), pg.Close, nil
	}
	return nil, nil, errors.New("unsupported database driver " + cfg.Database.Driver)
}

type mailQueue interface {
	mailer.Notifier
	worker.Queue
}

// buildMailer picks SMTP or log delivery and wraps it in the Redis outbox
// when available, or in detached goroutines otherwise.
func buildMailer(cfg *config.Config, redis *persistence.Redis, logger *zap.Logger) (mailer.Notifier, *worker.MailWorker) {
	policy := mailer.RetryPolicy{
		Attempts: cfg.Mail.RetryAttempts,
		Initial:  time.Duration(cfg.Mail.RetryInitialMS) * time.Millisecond,
		Max:      time.Duration(cfg.Mail.RetryMaxMS) * time.Millisecond,
	}
	sendTimeout := time.Duration(cfg.Mail.SendTimeoutSec) * time.Second

	var inner mailer.Notifier = mailer.NewLogNotifier(logger)
	if cfg.Mail.SMTPEnabled() {
		// The wrapper owns retries; one attempt per call here.
		inner = mailer.NewSMTPNotifier(mailer.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			Timeout:  sendTimeout,
		}, mailer.RetryPolicy{Attempts: 1}, logger)
	}

	var queue mailQueue
	if client := redis.Handle(); client != nil && cfg.Mail.UseOutbox {
		queue = mailer.NewOutbox(client, inner, policy, mailer.OutboxConfig{
			QueueKey:      cfg.Mail.QueueKey,
			DeadLetterKey: cfg.Mail.DeadLetterKey,
			PollTimeout:   time.Duration(cfg.Mail.WorkerPollSec) * time.Second,
			SendTimeout:   sendTimeout,
		}, logger)
	} else {
		queue = asyncQueue{mailer.NewAsync(inner, policy, sendTimeout, logger)}
	}
	return queue, worker.NewMailWorker(queue, logger)
}

// asyncQueue adapts direct delivery to the worker: there is nothing to
// drain, only in-flight sends to wait for.
type asyncQueue struct {
	*mailer.Async
}

func (asyncQueue) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
