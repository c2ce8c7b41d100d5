// Package main is the entry point of the journey engine API.
//
// The API serves a child's development journey: age-appropriate questions,
// answers, module progress, badges and caregiver-facing texts personalized
// with the child's name and gender.
//
// Layering follows Clean Architecture and DDD:
// - Domain: catalog, child, journey and personalization rules
// - Application: commands, queries, the badge saga and event handlers
// - Infrastructure: stores, caches, the profile client and the event bus
// - Interface: the HTTP API
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/titinauta/journey-engine/config"

	// Application layer
	"github.com/titinauta/journey-engine/internal/application/access"
	"github.com/titinauta/journey-engine/internal/application/command"
	"github.com/titinauta/journey-engine/internal/application/eventhandler"
	"github.com/titinauta/journey-engine/internal/application/query"
	"github.com/titinauta/journey-engine/internal/application/saga"

	// Domain layer
	"github.com/titinauta/journey-engine/internal/domain/catalog"
	"github.com/titinauta/journey-engine/internal/domain/child"
	"github.com/titinauta/journey-engine/internal/domain/journey"
	"github.com/titinauta/journey-engine/internal/domain/personalization"
	"github.com/titinauta/journey-engine/internal/domain/shared"

	// Infrastructure layer
	"github.com/titinauta/journey-engine/internal/infrastructure/external/profile"
	"github.com/titinauta/journey-engine/internal/infrastructure/messaging"
	"github.com/titinauta/journey-engine/internal/infrastructure/persistence/memory"
	"github.com/titinauta/journey-engine/internal/infrastructure/persistence/postgres"
	"github.com/titinauta/journey-engine/internal/infrastructure/persistence/redis"
	"github.com/titinauta/journey-engine/internal/infrastructure/persistence/sqlite"

	// Interface layer
	httpserver "github.com/titinauta/journey-engine/internal/interface/http"
	"github.com/titinauta/journey-engine/internal/interface/http/handlers"

	// Packages
	"github.com/titinauta/journey-engine/pkg/logger"
	"github.com/titinauta/journey-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log, err := setupLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting journey engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("timezone", cfg.App.Timezone),
	)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. CONTENT CATALOG
	// ─────────────────────────────────────────────────────────────────────────
	cat, err := catalog.Load(cfg.Journey.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	stats := cat.Stats()
	log.Info("catalog loaded",
		logger.Int("modules", stats.Modules),
		logger.Int("questions", stats.Questions),
		logger.Int("badges", stats.Badges),
		logger.String("digest", cat.Digest()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing store...")
		if err := store.Close(); err != nil {
			log.Warn("store close failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. PROGRESS CACHE (Redis, in-process fallback)
	// ─────────────────────────────────────────────────────────────────────────
	var progressCache query.ProgressCache
	var redisCache *redis.Cache
	if cfg.Redis.Enabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, using in-process cache", logger.Err(err))
		} else {
			defer redisCache.Close()
			progressCache = redis.NewProgressCache(redisCache, cfg.Redis.ProgressTTL)
			log.Info("Redis connection established", logger.String("addr", redisCfg.Addr()))
		}
	}
	if progressCache == nil {
		progressCache = memory.NewProgressCache()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
		if m := eventBus.Metrics(); m != nil {
			snap := m.Snapshot()
			log.Info("event bus stats",
				logger.Int64("published", snap.TotalPublished),
				logger.Int64("handler_failures", snap.HandlerFailures),
				logger.Float64("handler_success_rate", snap.HandlerSuccessRate),
				logger.Duration("avg_handler_duration", snap.AverageHandlerDuration),
			)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. CHILD PROFILES
	// ─────────────────────────────────────────────────────────────────────────
	profiles, authorizer, profilePing, err := setupProfiles(cfg, log)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION LAYER (Commands, Queries, Saga)
	// ─────────────────────────────────────────────────────────────────────────
	resolver := child.WindowResolver{
		BufferBefore: cfg.Journey.AgeBufferBefore,
		BufferAfter:  cfg.Journey.AgeBufferAfter,
	}
	loader := access.NewLoader(profiles, authorizer, resolver, timeutil.SystemClock, log)
	calculator := journey.NewProgressCalculator(cat)
	achievements := journey.NewAchievementEngine(cat.Badges())
	personalizer := personalization.NewEngine()
	retrier := query.NewReadRetrier(log)

	badgeFlow := saga.NewBadgeFlowSaga(store, calculator, achievements, eventBus, log, saga.DefaultBadgeFlowConfig())

	journeyHandlers := handlers.JourneyHandlers{
		SaveAnswer:       command.NewSaveAnswerHandler(cat, loader, store, calculator, badgeFlow, personalizer, eventBus, log),
		GetQuestions:     query.NewGetQuestionsHandler(cat, loader, store, personalizer, retrier, log),
		GetProgress:      query.NewGetProgressHandler(cat, loader, store, calculator, personalizer, progressCache, retrier, log),
		GetBadges:        query.NewGetBadgesHandler(loader, store, store, achievements, badgeFlow, personalizer, retrier, log),
		GetAnswerHistory: query.NewGetAnswerHistoryHandler(cat, loader, store, retrier, log),
		ListModules:      query.NewListModulesHandler(cat, loader, store, calculator, personalizer, retrier, log),
		GetIntroduction:  query.NewGetIntroductionHandler(cat, loader, personalizer, retrier, log),
		BrowseCatalog:    query.NewBrowseCatalogHandler(cat),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	if err := subscribeHandlers(eventBus, progressCache, log); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("store", handlers.NewPingCheck(store))
	if redisCache != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(redisCache))
	}
	if profilePing != nil {
		health.AddCheck("profile_service", handlers.NewPingCheck(profilePing))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.APIKeys = cfg.HTTP.APIKeys
	httpConfig.RequireUser = cfg.HTTP.RequireUser
	httpConfig.Version = cfg.App.Version

	httpServer := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Journey:       journeyHandlers,
		Logger:        log,
		HealthChecker: health,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 12. RUN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := httpServer.StartAsync()

	log.Info("journey engine is running", logger.String("http_address", httpServer.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", logger.Err(err))
			return err
		}
	case <-ctx.Done():
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 13. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
	}

	// Event bus, cache and store close through defer.
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) (*logger.Logger, error) {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	log, err := logger.New(opts)
	if err != nil {
		return nil, err
	}
	return log.With(logger.String("service", cfg.App.Name)), nil
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (journey.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		log.Info("connecting to PostgreSQL and running migrations...")
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.Database.URL
		pgCfg.MaxConns = int32(cfg.Database.MaxConns)
		pgCfg.MinConns = int32(cfg.Database.MinConns)
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		store, err := postgres.Open(connectCtx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		log.Info("database connection established")
		return store, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		log.Info("sqlite store opened", logger.String("path", cfg.Storage.SQLitePath))
		return store, nil

	default:
		log.Warn("using in-memory store, answers are lost on restart")
		return memory.NewStore(), nil
	}
}

// setupProfiles returns the profile provider, the authorizer and, for the
// remote service, a pinger for health checks.
func setupProfiles(cfg *config.Config, log *logger.Logger) (child.ProfileProvider, child.Authorizer, handlers.Pinger, error) {
	if cfg.Profile.BaseURL != "" {
		clientCfg := profile.DefaultClientConfig(cfg.Profile.BaseURL)
		clientCfg.APIKey = cfg.Profile.APIKey
		clientCfg.Timeout = cfg.Profile.RequestTimeout
		clientCfg.RateLimit.RequestsPerSecond = float64(cfg.Profile.RateLimitRPS)
		clientCfg.RateLimit.BurstSize = cfg.Profile.RateLimitBurst
		clientCfg.Logger = log
		client := profile.NewClient(clientCfg)
		log.Info("using profile service", logger.String("base_url", cfg.Profile.BaseURL))
		return client, client, client, nil
	}

	if cfg.Profile.SeedFile != "" {
		static, err := profile.LoadSeedFile(cfg.Profile.SeedFile)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("using seeded profiles", logger.String("file", cfg.Profile.SeedFile))
		return static, static, nil, nil
	}

	log.Warn("no profile service configured, every child lookup will fail")
	static := profile.NewStaticProvider()
	return static, static, nil, nil
}

func subscribeHandlers(bus shared.EventBus, cache query.ProgressCache, log *logger.Logger) error {
	onAnswer := eventhandler.NewOnAnswerRecordedHandler(cache, log)
	onMilestone := eventhandler.NewOnMilestoneHandler(log)

	if err := bus.Subscribe(shared.EventAnswerRecorded, onAnswer.Handle); err != nil {
		return err
	}
	if err := bus.Subscribe(shared.EventBadgeUnlocked, onMilestone.Handle); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventModuleCompleted, onMilestone.Handle)
}
