package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/branch-queue/internal/api/http"
	"github.com/spec-kit/branch-queue/internal/api/http/handlers"
	"github.com/spec-kit/branch-queue/internal/auth"
	"github.com/spec-kit/branch-queue/internal/config"
	"github.com/spec-kit/branch-queue/internal/events"
	"github.com/spec-kit/branch-queue/internal/numbering"
	"github.com/spec-kit/branch-queue/internal/observability"
	"github.com/spec-kit/branch-queue/internal/persistence"
	"github.com/spec-kit/branch-queue/internal/registry"
	"github.com/spec-kit/branch-queue/internal/repository"
	"github.com/spec-kit/branch-queue/internal/repository/memstore"
	"github.com/spec-kit/branch-queue/internal/service"
	"github.com/spec-kit/branch-queue/internal/worker"
)

func main() {
	envFile := pflag.String("env-file", "", "dotenv file to load before reading the environment")
	catalogPath := pflag.String("catalog", "", "service catalog YAML (overrides REGISTRY_CATALOG_PATH)")
	seedPath := pflag.String("seed", "", "reference data YAML applied at startup")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	pflag.Parse()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *catalogPath != "" {
		cfg.Registry.CatalogPath = *catalogPath
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := observability.SetupTracing(ctx, cfg.App, cfg.Telemetry, logger)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations || *migrateOnly {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	if *migrateOnly {
		return
	}

	var store repository.Store
	if pg.Enabled() {
		store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		store = memstore.New()
	}

	if *seedPath != "" {
		seed, err := registry.LoadSeed(*seedPath)
		if err != nil {
			logger.Fatal("failed to load seed", zap.Error(err))
		}
		created, err := seed.Apply(ctx, store.Repositories())
		if err != nil {
			logger.Fatal("failed to apply seed", zap.Error(err))
		}
		logger.Info("reference data seeded", zap.Int("created", created))
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	catalog, err := registry.LoadCatalog(cfg.Registry.CatalogPath)
	if err != nil {
		logger.Fatal("failed to load service catalog", zap.Error(err))
	}
	defaultZone, err := time.LoadLocation(cfg.Dispatch.DefaultTimezone)
	if err != nil {
		logger.Fatal("invalid default timezone", zap.Error(err))
	}
	branches := registry.NewBranchRegistry(store.Repositories().Branches, redis.Handle(), cfg.Registry.BranchCacheTTL(), logger)

	hub := events.NewHub(cfg.Broadcast.SubscriberBuffer)
	var (
		relay       events.Relay
		relaySource worker.RelaySource
	)
	if client := redis.Handle(); client != nil {
		redisRelay := events.NewRedisRelay(client, cfg.Broadcast.ChannelPrefix, logger)
		relay, relaySource = redisRelay, redisRelay
	}
	broadcaster := events.NewBroadcaster(hub, relay, logger)
	metrics := observability.NewMetrics()

	rt := service.Runtime{
		Store:            store,
		Dispatcher:       broadcaster,
		Locks:            service.NewLockSet(),
		Logger:           logger,
		Metrics:          metrics,
		OperationTimeout: cfg.Dispatch.OperationTimeout(),
		MaxClaimAttempts: cfg.Dispatch.MaxClaimAttempts,
	}
	engine := service.NewDispatchService(service.DispatchDependencies{
		Runtime:            rt,
		Catalog:            catalog,
		CandidateBatchSize: cfg.Dispatch.CandidateBatchSize,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		Runtime:   rt,
		Catalog:   catalog,
		Sequencer: numbering.NewSequencer(catalog, defaultZone),
		Branches:  branches,
		Engine:    engine,
	})
	counters := service.NewCounterService(service.CounterDependencies{Runtime: rt})
	assignments := service.NewAssignmentService(service.AssignmentDependencies{Runtime: rt})
	announcements := service.NewAnnouncementService(broadcaster, service.NewLogAnnouncer(logger), logger)

	worker.StartAnnouncementWorker(announcements)
	relayDone := worker.StartEventRelay(ctx, relaySource, broadcaster, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
	streamsDone := make(chan struct{})

	deps := map[string]handlers.Pinger{"store": store}
	if redis.Handle() != nil {
		deps["redis"] = redis
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	app.Use(observability.TraceRequests(cfg.App.Name))
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Metrics:        handlers.NewMetricsHandler(metrics),
		Tickets:        handlers.NewTicketsHandler(tickets, engine),
		Counters:       handlers.NewCountersHandler(counters, engine, assignments),
		Audit:          handlers.NewAuditHandler(assignments),
		Events:         handlers.NewEventsHandler(hub, 15*time.Second, streamsDone, logger),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	close(streamsDone)
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	<-relayDone

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
