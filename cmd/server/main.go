package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/focusms/server-go/internal/config"
	"github.com/focusms/server-go/internal/database"
	"github.com/focusms/server-go/internal/events"
	"github.com/focusms/server-go/internal/handler"
	"github.com/focusms/server-go/internal/jobs"
	"github.com/focusms/server-go/internal/localstore"
	"github.com/focusms/server-go/internal/middleware"
	"github.com/focusms/server-go/internal/redis"
	"github.com/focusms/server-go/internal/repository"
	"github.com/focusms/server-go/internal/service"
	"github.com/focusms/server-go/internal/timer"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	local := localstore.New(cfg.DataDir, cfg.DefaultBlockMinutes)

	// The remote store is optional: without DATABASE_URL the server runs in
	// anonymous-only mode and authenticated requests surface as unconfigured.
	var db *database.DB
	var sessionRepo repository.SessionRepository
	var userRepo repository.UserRepository
	if cfg.RemoteStoreConfigured() {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		cancel()
		log.Info().Msg("database connected")

		sessionRepo = repository.NewSessionRepository(db.DB)
		userRepo = repository.NewUserRepository(db.DB)
	} else {
		log.Warn().Msg("DATABASE_URL not set: remote session store disabled")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	broker := events.NewBroker(redisClient)
	defer broker.Close()

	stores := service.NewStores(local, sessionRepo)
	sessionService := service.NewSessionService(stores, local, broker, timer.NewClock(), cfg.DefaultBlockMinutes)

	migrationService := service.NewMigrationService(db, sessionRepo)

	identityMiddleware := middleware.NewIdentityMiddleware(userRepo)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	rateLimitMiddleware := middleware.NewRateLimitMiddleware(rawRedis(redisClient), cfg.RateLimitPerMin)

	blockHandler := handler.NewBlockHandler(sessionService)
	sessionsHandler := handler.NewSessionsHandler(sessionService)
	metricsHandler := handler.NewMetricsHandler(sessionService)
	migrateHandler := handler.NewMigrateHandler(migrationService, sessionService)
	settingsHandler := handler.NewSettingsHandler(sessionService)
	eventsHandler := handler.NewEventsHandler(broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(identityMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

			r.Mount("/block", blockHandler.Routes())
			r.Get("/sessions", sessionsHandler.List)
			r.Get("/metrics", metricsHandler.Get)
			r.Post("/migrate", migrateHandler.Migrate)
			r.Get("/settings", settingsHandler.Get)
			r.Put("/settings", settingsHandler.Put)
		})

		// The event stream outlives any request deadline.
		r.Get("/events", eventsHandler.ServeHTTP)
	})

	var cleanupJob *jobs.CleanupJob
	if userRepo != nil {
		cleanupJob = jobs.NewCleanupJob(userRepo, config.CleanupJobInterval)
		cleanupJob.Start()
		defer cleanupJob.Stop()
	}

	evictor := jobs.NewEngineEvictor(sessionService, config.EngineEvictInterval, config.EngineIdleTTL)
	evictor.Start()
	defer evictor.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// rawRedis unwraps the client for consumers that take the driver type
// directly; a nil wrapper stays nil.
func rawRedis(c *redis.Client) *goredis.Client {
	if c == nil {
		return nil
	}
	return c.Client
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
