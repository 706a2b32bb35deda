package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TechCorp07/klara-test-sub003/internal/config"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/account"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/appointment"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/dashboard"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/ehr"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/emergency"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/fhirresource"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/inbox"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/medication"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/telemedicine"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/wearable"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/db"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/metrics"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/middleware"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/notification"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/ws"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portal-server",
		Short: "Patient portal API server",
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
		Short: "Start the portal API server",
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
			if dir == "" {
				dir = cfg.MigrationsDir
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
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %s\n", "VERSION", "NAME", "STATUS")
			for _, s := range statuses {
				status := "pending"
				if s.Applied {
					status = "applied"
				}
				fmt.Printf("%-10d %-40s %s\n", s.Version, s.Name, status)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// wearableCredentials reads the per-vendor OAuth client credentials from the
// environment. Vendors without a client ID configured are left out, which
// keeps their connect flow disabled.
func wearableCredentials() map[string]wearable.ProviderCredentials {
	creds := make(map[string]wearable.ProviderCredentials)
	for _, provider := range []string{
		wearable.ProviderWithings, wearable.ProviderFitbit,
		wearable.ProviderGarmin, wearable.ProviderAppleHealth,
	} {
		prefix := "WEARABLE_" + strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
		id := os.Getenv(prefix + "_CLIENT_ID")
		if id == "" {
			continue
		}
		creds[provider] = wearable.ProviderCredentials{
			ClientID:     id,
			ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		}
	}
	return creds
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
		logger.Fatal().Err(err).Msg("invalid config")
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}

	// Database
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	m := metrics.New()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(m.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health and metrics stay outside auth
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", m.Handler())

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Unauthenticated endpoints (register, login)
	public := e.Group("/api/v1")
	public.Use(middleware.RateLimit(rateLimitCfg))

	// Authenticated API
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() && cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET not set; using development auth middleware")
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.JWTSecret),
		})
	}
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(authMW)

	// WebSocket hub for real-time portal events. The upgrade request goes
	// through the same auth middleware as the REST API; browsers pass the
	// token via the access_token query parameter.
	hub := ws.NewHub(logger)
	wsHandler := ws.NewHandler(hub)
	wsHandler.RegisterRoutes(e.Group("", authMW))

	// Notification stack. Log-backed senders stand in until real gateway
	// credentials are configured.
	templates := notification.NewTemplateEngine()
	dispatcher := notification.NewDispatcher(
		&notification.LogEmailSender{Logger: logger},
		&notification.LogSMSSender{Logger: logger},
		templates,
		logger,
	)

	// -- Domain wiring --

	issuerName := cfg.AuthIssuer
	if issuerName == "" {
		issuerName = "portal"
	}
	issuer := auth.NewTokenIssuer([]byte(cfg.JWTSecret), issuerName)

	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}

	accountSvc := account.NewService(
		account.NewUserRepoPG(pool),
		account.NewCredentialRepoPG(pool),
		issuer,
	)
	accountSvc.SetTxRunner(inTx)
	account.NewHandler(accountSvc).RegisterRoutes(apiV1, public)

	inboxSvc := inbox.NewService(inbox.NewRepoPG(pool), hub, logger)
	inbox.NewHandler(inboxSvc).RegisterRoutes(apiV1)

	medicationSvc := medication.NewService(
		medication.NewMedicationRepoPG(pool),
		medication.NewPrescriptionRepoPG(pool),
		medication.NewDoseRepoPG(pool),
		m,
	)
	medication.NewHandler(medicationSvc).RegisterRoutes(apiV1)
	medicationSvc.SetInbox(inboxSvc)
	medicationSvc.StartReminders(ctx, time.Minute, logger)

	appointmentSvc := appointment.NewService(appointment.NewRepoPG(pool), inboxSvc)
	appointment.NewHandler(appointmentSvc).RegisterRoutes(apiV1)

	telemedicineSvc := telemedicine.NewService(
		telemedicine.NewRepoPG(pool), hub, m, baseURL, logger)
	telemedicine.NewHandler(telemedicineSvc).RegisterRoutes(apiV1)
	telemedicineSvc.SetTxRunner(inTx)
	telemedicineSvc.SetMaxDuration(cfg.SessionMaxDuration)
	telemedicineSvc.StartWatcher(ctx, cfg.SessionSweepInterval)
	hub.SetTopicAuthorizer(telemedicineSvc.AuthorizeTopic)

	fhirSvc := fhirresource.NewService(fhirresource.NewRepoPG(pool), logger)
	fhirresource.NewHandler(fhirSvc).RegisterRoutes(apiV1)

	ehrSvc := ehr.NewService(
		ehr.NewIntegrationRepoPG(pool),
		ehr.NewSyncJobRepoPG(pool),
		fhirSvc,
		m,
		logger,
	)
	ehrSvc.SetUpstreamTimeout(cfg.UpstreamTimeout)
	ehrHandler := ehr.NewHandler(ehrSvc)
	ehrHandler.SetInbox(inboxSvc)
	ehrHandler.RegisterRoutes(apiV1)

	wearableSvc := wearable.NewService(
		wearable.NewIntegrationRepoPG(pool),
		wearable.NewDeviceRepoPG(pool),
		wearable.NewMeasurementRepoPG(pool),
		wearable.Config{
			RedirectURI: cfg.WearableRedirectURL,
			Credentials: wearableCredentials(),
			Timeout:     cfg.UpstreamTimeout,
		},
		logger,
	)
	wearableSvc.SetMetrics(m)
	wearable.NewHandler(wearableSvc).RegisterRoutes(apiV1)

	emergencySvc := emergency.NewService(
		emergency.NewContactRepoPG(pool),
		emergency.NewAlertRepoPG(pool),
		dispatcher,
		templates,
		accountSvc,
		m,
		logger,
	)
	emergencySvc.SetInbox(inboxSvc)
	emergency.NewHandler(emergencySvc).RegisterRoutes(apiV1)

	dashboardSvc := dashboard.NewService(
		appointmentSvc, medicationSvc, inboxSvc, wearableSvc, telemedicineSvc, emergencySvc, logger)
	dashboard.NewHandler(dashboardSvc).RegisterRoutes(apiV1)

	// Serve
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if cfg.TLSEnabled {
			errCh <- e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
			return
		}
		errCh <- e.Start(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
