package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/medrec/medrec/internal/config"
	"github.com/medrec/medrec/internal/domain/clinical"
	"github.com/medrec/medrec/internal/domain/clinicalcalc"
	"github.com/medrec/medrec/internal/domain/dropdown"
	"github.com/medrec/medrec/internal/domain/identity"
	"github.com/medrec/medrec/internal/domain/image"
	"github.com/medrec/medrec/internal/domain/investigation"
	"github.com/medrec/medrec/internal/domain/patient"
	"github.com/medrec/medrec/internal/domain/report"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/blobstore"
	"github.com/medrec/medrec/internal/platform/cache"
	"github.com/medrec/medrec/internal/platform/db"
	"github.com/medrec/medrec/internal/platform/middleware"
)

// app holds the services and handlers served under /api/v1.
type app struct {
	identity *identity.Service

	identityHandler      *identity.Handler
	dropdownHandler      *dropdown.Handler
	patientHandler       *patient.Handler
	clinicalHandler      *clinical.Handler
	investigationHandler *investigation.Handler
	imageHandler         *image.Handler
	reportHandler        *report.Handler
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, store blobstore.BlobStore, c cache.Cache,
	issuer *auth.TokenIssuer, logger zerolog.Logger) *app {
	cat := dropdown.Default()

	identitySvc := identity.NewService(identity.NewUserRepo(pool), issuer, logger)
	patientSvc := patient.NewService(patient.NewRepo(pool), cat, c, logger)
	investigationSvc := investigation.NewService(investigation.NewRepo(pool), patientSvc, cat, logger)
	clinicalSvc := clinical.NewService(clinical.NewRepo(pool), patientSvc, clinicalcalc.NewProcessor(logger), logger)
	imageSvc := image.NewService(image.NewRepo(pool), store, patientSvc, investigationSvc, cfg.MaxUploadBytes(), logger)
	reportSvc := report.NewService(patientSvc, investigationSvc, clinicalSvc, cat, logger)

	return &app{
		identity:             identitySvc,
		identityHandler:      identity.NewHandler(identitySvc),
		dropdownHandler:      dropdown.NewHandler(cat),
		patientHandler:       patient.NewHandler(patientSvc),
		clinicalHandler:      clinical.NewHandler(clinicalSvc),
		investigationHandler: investigation.NewHandler(investigationSvc),
		imageHandler:         image.NewHandler(imageSvc),
		reportHandler:        report.NewHandler(reportSvc),
	}
}

// newEcho builds the HTTP server: global middleware, health checks and the
// authenticated /api/v1 group.
func newEcho(cfg *config.Config, a *app, jwtCfg auth.JWTConfig, dbCheck db.Pinger, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, uploadLimit(cfg)))
	e.Use(middleware.Sanitize(logger))

	// Auth middleware
	jwtCfg.Skipper = auth.AuthSkipper
	e.Use(auth.JWTMiddleware(jwtCfg))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(dbCheck))

	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.Limit = rate.Limit(cfg.RateLimitRPS)
		if cfg.RateLimitBurst > 0 {
			rateLimitCfg.Burst = cfg.RateLimitBurst
		}
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	authLimit := middleware.RateLimit(middleware.AuthRateLimitConfig(cfg.AuthRateLimitMax, cfg.AuthRateLimitWindow))
	a.identityHandler.RegisterRoutes(apiV1, authLimit)
	a.dropdownHandler.RegisterRoutes(apiV1)
	a.patientHandler.RegisterRoutes(apiV1)
	a.clinicalHandler.RegisterRoutes(apiV1)
	a.investigationHandler.RegisterRoutes(apiV1)
	a.imageHandler.RegisterRoutes(apiV1)
	a.reportHandler.RegisterRoutes(apiV1)

	return e
}

// uploadLimit leaves one megabyte of headroom over the image size limit for
// the multipart envelope, so oversized files reach the handler and get a 413
// with a useful message.
func uploadLimit(cfg *config.Config) string {
	return fmt.Sprintf("%dM", cfg.MaxUploadMB+1)
}

func newCache(cfg *config.Config, logger zerolog.Logger) (cache.Cache, func(), error) {
	local := cache.NewLRU(cfg.CacheSize, cfg.CacheTTL)
	if cfg.RedisURL == "" {
		return local, func() {}, nil
	}

	client, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	remote := cache.NewRedis(client, "medrec:", cfg.CacheTTL, cache.DefaultBreakerSettings, logger)
	logger.Info().Msg("redis cache enabled")
	return cache.NewTiered(local, remote, logger), func() { _ = client.Close() }, nil
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel, cfg.IsDev())
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

	store, err := blobstore.NewFileSystemBlobStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open upload directory")
	}

	c, closeCache, err := newCache(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure cache")
	}
	defer closeCache()

	issuer, err := auth.NewTokenIssuer(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure token issuer")
	}

	a := newApp(cfg, pool, store, c, issuer, logger)
	if _, err := a.identity.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure admin user")
	}

	e := newEcho(cfg, a, issuer.Config(), pool, logger)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
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
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
