package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/edops/internal/config"
	"github.com/ehr/edops/internal/domain/emergency"
	"github.com/ehr/edops/internal/domain/scheduling"
	"github.com/ehr/edops/internal/domain/staffing"
	"github.com/ehr/edops/internal/domain/workforce"
	"github.com/ehr/edops/internal/platform/analytics"
	"github.com/ehr/edops/internal/platform/auth"
	"github.com/ehr/edops/internal/platform/db"
	"github.com/ehr/edops/internal/platform/middleware"
	"github.com/ehr/edops/internal/platform/notification"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ed-server",
		Short: "Emergency department staffing and triage server",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(policyCmd())
	root.AddCommand(classifyCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.IsDev() {
		logger.Warn().Msg("ENV=development: requests without a token are served as admin")
	}
	if cfg.IsProduction() && !cfg.TLSEnabled {
		logger.Warn().Msg("TLS is disabled in production; terminate TLS upstream")
	}

	policy, err := config.LoadStaffingPolicy(cfg.StaffingPolicyFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load staffing policy")
	}
	engine, err := staffing.NewEngine(policy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid staffing policy")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	checks := []db.Check{db.PoolCheck(pool)}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info().Str("addr", opts.Addr).Msg("redis configured")
	}

	e := newServer(cfg, logger)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks...))

	apiV1 := e.Group("/api/v1")
	registerDomains(apiV1, cfg, logger, pool, rdb, engine)

	return serve(e, cfg, logger)
}

// newServer builds the echo instance with the global middleware chain.
func newServer(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, isBatch))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.BatchBodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "If-Match", "X-Request-ID"},
		ExposeHeaders: []string{"ETag", "X-Request-ID"},
	}))

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		Skipper:           auth.AuthSkipper,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg))

	return e
}

// isBatch matches the routes served without a request deadline.
func isBatch(c echo.Context) bool {
	return strings.HasSuffix(c.Path(), "/batch")
}

func registerDomains(api *echo.Group, cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, rdb *redis.Client, engine *staffing.Engine) {
	// Notifications
	var sender notification.Sender
	if rdb != nil {
		sender = notification.NewRedisOutbox(rdb)
	} else {
		sender = notification.NewLogSender(logger.With().Str("component", "notification").Logger())
	}
	notifier := notification.NewManager(sender, notification.NewTemplateEngine())
	notifier.SetLogger(logger.With().Str("component", "notification").Logger())
	notification.NewHandler(notifier).RegisterRoutes(api)

	// Workforce
	workforceSvc := workforce.NewService(workforce.NewEmployeeRepoPG(pool), workforce.NewLeaveRepoPG(pool))
	workforceSvc.SetLogger(logger.With().Str("component", "workforce").Logger())
	workforce.NewHandler(workforceSvc).RegisterRoutes(api)

	// Scheduling
	schedulingSvc := scheduling.NewService(scheduling.NewShiftRepoPG(pool), workforceSvc, engine)
	schedulingSvc.SetLogger(logger.With().Str("component", "scheduling").Logger())
	schedulingSvc.SetNotifier(notifier, notification.ChannelSMS)
	schedulingSvc.SetBatchLimit(cfg.BatchConcurrency)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(api)

	// Emergency
	emergencySvc := emergency.NewService(emergency.NewPatientRepoPG(pool))
	emergencySvc.SetLogger(logger.With().Str("component", "emergency").Logger())
	if cfg.AlertAddress != "" {
		emergencySvc.SetAlerts(notifier, notification.Channel(cfg.AlertChannel), cfg.AlertAddress)
	} else {
		logger.Warn().Msg("ALERT_ADDRESS not set; critical-patient alerts are disabled")
	}
	emergency.NewHandler(emergencySvc).RegisterRoutes(api)

	// Analytics
	if cfg.AnalyticsURL != "" {
		client := analytics.NewClient(analytics.Options{
			BaseURL:    cfg.AnalyticsURL,
			RetryCount: 2,
			CacheTTL:   cfg.AnalyticsCacheTTL,
		})
		client.SetLogger(logger.With().Str("component", "analytics").Logger())
		if rdb != nil {
			client.WithCache(rdb)
		}
		analytics.NewHandler(client).RegisterRoutes(api)
		logger.Info().Str("url", cfg.AnalyticsURL).Msg("analytics enabled")
	}
}

func serve(e *echo.Echo, cfg *config.Config, logger zerolog.Logger) error {
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")

		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
