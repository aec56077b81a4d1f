package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/recitation-service/internal/api/http"
	"github.com/spec-kit/recitation-service/internal/api/http/handlers"
	"github.com/spec-kit/recitation-service/internal/auth"
	"github.com/spec-kit/recitation-service/internal/config"
	"github.com/spec-kit/recitation-service/internal/events"
	"github.com/spec-kit/recitation-service/internal/observability"
	"github.com/spec-kit/recitation-service/internal/persistence"
	"github.com/spec-kit/recitation-service/internal/repository"
	"github.com/spec-kit/recitation-service/internal/service"
	"github.com/spec-kit/recitation-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)
	mistakeRepo := repository.NewMistakeHistoryRepository(pool)
	assignmentRepo := repository.NewAssignmentRepository(pool)
	auditRepo := repository.NewTicketAuditRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		StudentRepo: studentRepo,
		StaffRepo:   staffRepo,
	})
	sessionService := service.NewSessionService(service.SessionDependencies{
		TicketRepo: ticketRepo,
		StaffRepo:  staffRepo,
		AuditRepo:  auditRepo,
		Dispatcher: dispatcher,
	})
	ledgerService := service.NewLedgerService(service.LedgerDependencies{
		TicketRepo: ticketRepo,
		Dispatcher: dispatcher,
	})
	livenessService := service.NewLivenessService(service.LivenessDependencies{
		TicketRepo: ticketRepo,
		Cache:      redis,
		Threshold:  cfg.Liveness.StaleThreshold(),
	})
	reviewService := service.NewReviewService(service.ReviewDependencies{
		TicketRepo:     ticketRepo,
		MistakeRepo:    mistakeRepo,
		AssignmentRepo: assignmentRepo,
		AuditRepo:      auditRepo,
		Dispatcher:     dispatcher,
	})

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), studentRepo, staffRepo)

	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	authHandler := handlers.NewAuthHandler(authService)
	sessionsHandler := handlers.NewSessionsHandler(sessionService, ledgerService, livenessService)
	reviewHandler := handlers.NewReviewHandler(reviewService, sessionService, livenessService)
	studentHandler := handlers.NewStudentTicketsHandler(sessionService, mistakeRepo, assignmentRepo)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Auth:           authHandler,
		Sessions:       sessionsHandler,
		Review:         reviewHandler,
		StudentTickets: studentHandler,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
