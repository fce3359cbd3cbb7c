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

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medicore/hms/internal/config"
	"github.com/medicore/hms/internal/domain/catalog"
	"github.com/medicore/hms/internal/domain/identity"
	"github.com/medicore/hms/internal/domain/visit"
	"github.com/medicore/hms/internal/platform/auth"
	"github.com/medicore/hms/internal/platform/db"
	"github.com/medicore/hms/internal/platform/middleware"
	"github.com/medicore/hms/internal/platform/notification"
)

// patientLookupAdapter adapts the identity service to the visit domain's
// PatientLookup interface, avoiding a direct import between the two domains.
type patientLookupAdapter struct {
	svc *identity.Service
}

func (a *patientLookupAdapter) Lookup(ctx context.Context, id uuid.UUID) (*visit.PatientInfo, error) {
	p, err := a.svc.GetPatient(ctx, id)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, visit.ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &visit.PatientInfo{
		ID:           p.ID,
		Name:         p.FirstName + " " + p.LastName,
		Email:        p.Email,
		HasInsurance: p.HasInsurance(),
		CoveragePct:  p.InsuranceCoveragePct,
	}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital visit management API server",
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
				return err
			}
			fmt.Printf("applied %d migration(s)\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")

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
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = fmt.Sprintf("applied %s", s.AppliedAt.Format(time.RFC3339))
				}
				fmt.Printf("%04d  %-40s  %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "migrations directory (defaults to MIGRATIONS_DIR)")

	cmd.AddCommand(upCmd)
	cmd.AddCommand(statusCmd)
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

	// Redis price cache (optional)
	var priceCache catalog.PriceCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, price cache disabled")
		} else {
			priceCache = catalog.NewRedisCache(client)
			logger.Info().Msg("connected to redis")
		}
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// API group with rate limiting
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Identity domain
	patientRepo := identity.NewPatientRepoPG(pool)
	staffRepo := identity.NewStaffRepoPG(pool)
	identitySvc := identity.NewService(patientRepo, staffRepo)
	identityHandler := identity.NewHandler(identitySvc)
	identityHandler.RegisterRoutes(apiV1)

	// Service catalog domain
	catalogRepo := catalog.NewRepoPG(pool)
	catalogSvc := catalog.NewService(catalogRepo, priceCache)
	catalogHandler := catalog.NewHandler(catalogSvc)
	catalogHandler.RegisterRoutes(apiV1)

	// Notifications
	tplEngine := notification.NewTemplateEngine()
	notifyMgr := notification.NewManager(smtpSenderFromEnv(logger), &notification.MockSMSSender{}, tplEngine)
	notifyHandler := notification.NewHandler(notifyMgr)
	notifyHandler.RegisterRoutes(apiV1)

	// Visit domain
	visitRepo := visit.NewRepoPG(pool)
	visitSvc := visit.NewService(visitRepo, &patientLookupAdapter{svc: identitySvc}, catalogSvc, logger)
	visitHandler := visit.NewHandler(visitSvc, notification.NewReceiptNotifier(notifyMgr), logger)
	visitHandler.RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// smtpSenderFromEnv returns a logging email sender. Wiring a real SMTP relay
// is a deployment concern; the notification manager only needs the interface.
func smtpSenderFromEnv(logger zerolog.Logger) notification.EmailSender {
	return &logEmailSender{log: logger}
}

type logEmailSender struct {
	log zerolog.Logger
}

func (s *logEmailSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.log.Info().Str("to", to).Str("subject", subject).Msg("email dispatched")
	return nil
}
