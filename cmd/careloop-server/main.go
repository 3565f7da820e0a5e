package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/careloop/careloop/internal/config"
	"github.com/careloop/careloop/internal/domain/careplan"
	"github.com/careloop/careloop/internal/domain/checkin"
	"github.com/careloop/careloop/internal/domain/patient"
	"github.com/careloop/careloop/internal/domain/portal"
	"github.com/careloop/careloop/internal/domain/tenant"
	"github.com/careloop/careloop/internal/platform/ai"
	"github.com/careloop/careloop/internal/platform/audit"
	"github.com/careloop/careloop/internal/platform/auth"
	"github.com/careloop/careloop/internal/platform/db"
	"github.com/careloop/careloop/internal/platform/keyedstore"
	"github.com/careloop/careloop/internal/platform/middleware"
	"github.com/careloop/careloop/internal/platform/notify"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "careloop-server",
		Short: "Care plan delivery API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Keyed store backing attempt limits and portal grants. Redis when
	// configured, otherwise a single-process in-memory store.
	var store keyedstore.Store
	if cfg.RedisURL != "" {
		client, err := keyedstore.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		store = keyedstore.NewRedisStore(client)
		logger.Info().Msg("using redis keyed store")
	} else {
		memStore := keyedstore.NewMemoryStore()
		defer memStore.Close()
		store = memStore
		logger.Warn().Msg("REDIS_URL not set; attempt limits and portal grants are in-memory only")
	}

	// AI transformer
	transformer, err := ai.NewOpenAITransformer(cfg.OpenAIAPIKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create transformer")
	}

	// Notification channels. Either may be absent; delivery degrades to
	// whatever is configured.
	var email notify.EmailSender
	if cfg.SMTPAddr != "" {
		email = &notify.SMTPSender{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom}
	} else {
		logger.Warn().Msg("SMTP_ADDR not set; email delivery disabled")
	}
	var sms notify.SMSSender
	if cfg.TwilioSID != "" {
		sms = notify.NewTwilioSender(cfg.TwilioSID, cfg.TwilioToken, cfg.TwilioFrom)
	} else {
		logger.Warn().Msg("TWILIO_ACCOUNT_SID not set; SMS delivery disabled")
	}
	notifier := notify.NewService(email, sms, logger)

	// Audit trail
	auditLogger := audit.NewLogger(pool)

	// Domain services
	tenantSvc := tenant.NewService(tenant.NewRepoPG(pool))
	patientSvc := patient.NewService(patient.NewRepoPG(pool))

	checkinSvc := checkin.NewService(checkin.NewRepoPG(pool), checkin.NewAlertRepoPG(pool),
		notifier, cfg.BaseURL, logger)

	carePlanSvc := careplan.NewService(careplan.NewRepoPG(pool), transformer, patientSvc,
		checkinSvc, auditLogger, notifier, cfg.BaseURL, logger)
	checkinSvc.SetPlanCompleter(carePlanSvc)

	// Patient identity verification
	var verifier portal.Verifier
	if cfg.DemoVerification && !cfg.IsProduction() {
		verifier = portal.NewDemoVerifier()
		logger.Warn().Msg("DEMO_VERIFICATION enabled; portal identity checks match year of birth only")
	} else {
		verifier = portal.NewProductionVerifier()
	}

	demoIssuer := portal.NewDemoTokenIssuer()
	defer demoIssuer.Close()

	portalSvc := portal.NewService(carePlanSvc, patientSvc, checkinSvc, verifier,
		portal.NewAttemptLimiter(store), portal.NewGrantStore(store), demoIssuer,
		auditLogger, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Patient portal routes are token-authenticated, not JWT-authenticated,
	// so they mount on the root server ahead of the staff API group.
	portalHandler := portal.NewHandler(portalSvc, cfg.IsProduction())
	portalHandler.RegisterRoutes(e)

	// Staff API
	api := e.Group("/api/v1")

	if cfg.IsDev() {
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.JWTSigningKey),
			Issuer:     "careloop",
			Audience:   "careloop-api",
		}))
	}

	api.Use(tenant.Middleware(tenantSvc, cfg.DefaultTenant))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	rateLimitCfg.KeyFunc = func(c echo.Context) string {
		if t := tenant.FromContext(c.Request().Context()); t != nil {
			return t.Slug + ":" + c.RealIP()
		}
		return c.RealIP()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	tenant.NewHandler(tenantSvc).RegisterRoutes(api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	careplan.NewHandler(carePlanSvc, demoIssuer, auditLogger).RegisterRoutes(api)
	checkin.NewHandler(checkinSvc).RegisterRoutes(api)

	// Check-in sweep loop
	scheduler := checkin.NewScheduler(checkinSvc, cfg.CheckInSweepInterval, logger)
	scheduler.Start()
	defer scheduler.Stop()

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	return nil
}
