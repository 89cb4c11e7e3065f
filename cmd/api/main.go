package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/assignment"
	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/history"
	"github.com/spec-kit/helpdesk-service/internal/lifecycle"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/internal/workload"
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

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		ticketRepo       repository.TicketRepository
		technicianRepo   repository.TechnicianRepository
		userRepo         repository.UserRepository
		notificationRepo repository.NotificationRepository
		historyRepo      repository.TicketHistoryRepository
		auditRepo        repository.AuditLogRepository
		sequenceRepo     repository.TicketSequenceRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		ticketRepo = repository.NewTicketRepository(pool)
		technicianRepo = repository.NewTechnicianRepository(pool)
		userRepo = repository.NewUserRepository(pool)
		notificationRepo = repository.NewNotificationRepository(pool)
		historyRepo = repository.NewTicketHistoryRepository(pool)
		auditRepo = repository.NewAuditLogRepository(pool)
		sequenceRepo = repository.NewTicketSequenceRepository(pool)
	} else {
		logger.Warn("running with in-memory repositories; data will not survive restarts")
		ticketRepo = repository.NewMemoryTicketRepository()
		technicianRepo = repository.NewMemoryTechnicianRepository()
		userRepo = repository.NewMemoryUserRepository()
		notificationRepo = repository.NewMemoryNotificationRepository()
		historyRepo = repository.NewMemoryTicketHistoryRepository()
		auditRepo = repository.NewMemoryAuditLogRepository()
		sequenceRepo = repository.NewMemoryTicketSequenceRepository()
	}

	policy := sla.NewPolicy(cfg.SLA)
	machine := lifecycle.NewMachine(policy)

	tracker := workload.NewTracker(ticketRepo, workload.NewRedisScoreCache(redis.Client), cfg.Assignment.DefaultMaxConcurrent, logger)
	engine := assignment.NewEngine(technicianRepo, tracker, assignment.NewRedisCursor(redis.Client), cfg.Assignment.Algorithm, logger)

	metrics := observability.NewMetrics()
	observers := events.NewSyncDispatcher(logger)
	observers.Register("metrics", func(_ context.Context, event events.Event) error {
		metrics.RecordEvent(string(event.Type))
		return nil
	})

	effects := service.NewEffectRunner(
		history.NewRecorder(historyRepo),
		notify.NewDispatcher(notificationRepo, userRepo, logger),
		audit.NewWriter(auditRepo, logger),
		observers,
		logger,
	)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		TechnicianRepo: technicianRepo,
		UserRepo:       userRepo,
		SequenceRepo:   sequenceRepo,
		HistoryRepo:    historyRepo,
		Machine:        machine,
		Engine:         engine,
		Tracker:        tracker,
		Effects:        effects,
		AutoAssign:     cfg.Assignment.AutoAssignEnabled,
		Logger:         logger,
	})
	notificationService := service.NewNotificationService(notificationRepo)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(userRepo, technicianRepo, tokens, cfg.Auth.BcryptCost)
	authMiddleware := auth.NewAuthMiddleware(tokens, userRepo, technicianRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Sessions:       handlers.NewSessionsHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
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
