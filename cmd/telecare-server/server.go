package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/config"
	"github.com/telecare/telecare/internal/domain/appointment"
	"github.com/telecare/telecare/internal/domain/diagnostics"
	"github.com/telecare/telecare/internal/domain/identity"
	"github.com/telecare/telecare/internal/domain/medication"
	"github.com/telecare/telecare/internal/domain/prescription"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/events"
	"github.com/telecare/telecare/internal/platform/logging"
	"github.com/telecare/telecare/internal/platform/metrics"
	"github.com/telecare/telecare/internal/platform/middleware"
	"github.com/telecare/telecare/internal/platform/validate"
	"github.com/telecare/telecare/internal/platform/webhook"
	"github.com/telecare/telecare/internal/platform/websocket"
)

const (
	version    = "0.1.0"
	apiPrefix  = "/api/v1"
	bodyLimit  = "1M"
	shutdownIn = 10 * time.Second

	webhookWorkers = 4
)

// deps is everything the router needs that outlives a single request.
type deps struct {
	cfg         *config.Config
	logger      zerolog.Logger
	pool        *pgxpool.Pool
	tx          db.TxRunner
	metrics     *metrics.Metrics
	hub         *websocket.Hub
	emitter     *events.Emitter
	revocations auth.RevocationStore
}

func newLogger(cfg *config.Config) (zerolog.Logger, func()) {
	logger, closer := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Console:     cfg.IsDev(),
		File:        cfg.LogFile,
		MaxSizeMB:   cfg.LogFileMaxMB,
		MaxBackups:  cfg.LogFileMaxBackups,
		MaxAgeDays:  cfg.LogFileMaxAgeDays,
		Compress:    true,
		ServiceName: "telecare-server",
	})
	return logger, func() { _ = closer.Close() }
}

func runServer() error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog := newLogger(cfg)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.DefaultPoolOptions(cfg.DBMaxConns, cfg.DBMinConns))
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	d := &deps{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		tx:      db.NewTxRunner(pool),
		metrics: metrics.New(),
		hub:     websocket.NewHub(logger),
	}
	d.metrics.TrackPool(func() *db.PoolStats { return db.GetPoolStats(pool) })

	// Events fan out through Redis when configured so every instance's
	// websocket clients see every event; otherwise straight to the local hub.
	var publisher events.Publisher = d.hub
	d.revocations = auth.NewMemoryRevocationStore()
	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to redis")
			return err
		}
		defer client.Close()

		if err := events.Relay(ctx, client, events.DefaultChannel, d.hub, logger); err != nil {
			return err
		}
		publisher = events.NewRedisPublisher(client, events.DefaultChannel)
		d.revocations = auth.NewRedisRevocationStore(client)
		logger.Info().Msg("event relay and token revocations backed by redis")
	}

	hooks, stopHooks, err := startWebhooks(cfg, logger)
	if err != nil {
		return err
	}
	defer stopHooks()
	if hooks != nil {
		publisher = events.Fanout(publisher, hooks)
	}
	d.emitter = events.NewEmitter(events.Instrumented(publisher, d.metrics), logger)

	e := newRouter(d)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownIn)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// startWebhooks returns a nil dispatcher when no endpoints are configured.
// The workers run on their own context, not the signal context, so the
// returned stop function can still drain the queue after a shutdown signal.
func startWebhooks(cfg *config.Config, logger zerolog.Logger) (*webhook.Dispatcher, func(), error) {
	endpoints, err := webhook.ParseEndpoints(cfg.WebhookURLs, cfg.WebhookSecret, cfg.WebhookEvents)
	if err != nil {
		return nil, nil, err
	}
	if len(endpoints) == 0 {
		return nil, func() {}, nil
	}

	hooks := webhook.NewDispatcher(endpoints, logger)
	hooks.Start(context.Background(), webhookWorkers)
	logger.Info().Int("endpoints", len(endpoints)).Msg("webhook delivery enabled")

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownIn)
		defer cancel()
		if err := hooks.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("webhook queue not drained before shutdown deadline")
		}
	}
	return hooks, stop, nil
}

func newRouter(d *deps) *echo.Echo {
	cfg := d.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.DevAccountIDHeader, auth.DevAccountRoleHeader},
	}))
	e.Use(echomw.BodyLimit(bodyLimit))
	e.Use(d.metrics.Middleware())

	// Auth middleware
	if cfg.IsDev() && cfg.JWTSecret == "" {
		d.logger.Warn().Msg("development auth: caller identity taken from request headers")
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(jwtConfig(cfg, d.revocations)))
	}

	// Infrastructure endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.PoolHealthHandler(d.pool))
	e.GET("/metrics", d.metrics.Handler())

	wsPath := apiPrefix + "/ws"
	api := e.Group(apiPrefix,
		middleware.RateLimit(rateLimitConfig(cfg)),
		middleware.RequestTimeout(cfg.RequestTimeout, func(path string) bool { return path == wsPath }),
		middleware.Audit(d.logger),
	)

	// Identity
	accounts := identity.NewService(identity.NewAccountRepoPG(d.pool), d.tx)
	identity.NewHandler(accounts).RegisterRoutes(api)
	auth.RegisterRevocationRoutes(api, d.revocations)

	// Appointments and the prescriptions linked to them
	appts := appointment.NewService(
		appointment.NewAppointmentRepoPG(d.pool),
		appointment.NewHistoryRepoPG(d.pool),
		accounts, d.tx, d.emitter, d.logger,
	)
	appointment.NewHandler(appts).RegisterRoutes(api)

	rx := prescription.NewService(prescription.NewPrescriptionRepoPG(d.pool), appts, d.tx, d.emitter, d.logger)
	prescription.NewHandler(rx).RegisterRoutes(api)

	// Diagnostic requests
	dx := diagnostics.NewService(diagnostics.NewTestRepoPG(d.pool), accounts, d.emitter, d.logger)
	diagnostics.NewHandler(dx).RegisterRoutes(api)

	// Medication reviews and reconciliations
	meds := medication.NewService(
		medication.NewReviewRepoPG(d.pool),
		medication.NewReconciliationRepoPG(d.pool),
		accounts, d.tx, d.emitter, d.logger,
	)
	medication.NewHandler(meds).RegisterRoutes(api)

	// Real-time notifications
	websocket.NewHandler(d.hub, cfg.CORSOrigins).RegisterRoutes(api)

	return e
}

func jwtConfig(cfg *config.Config, revocations auth.RevocationStore) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:      cfg.JWTIssuer,
		Audience:    cfg.JWTAudience,
		SigningKey:  []byte(cfg.JWTSecret),
		Skipper:     auth.AuthSkipper,
		Revocations: revocations,
	}
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	return rl
}
