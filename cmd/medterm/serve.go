package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/medterm/medterm/internal/config"
	"github.com/medterm/medterm/internal/domain/terminology"
	"github.com/medterm/medterm/internal/platform/auth"
	"github.com/medterm/medterm/internal/platform/db"
	"github.com/medterm/medterm/internal/platform/middleware"
	"github.com/medterm/medterm/internal/platform/telemetry"
	"github.com/medterm/medterm/internal/platform/watch"
	"github.com/medterm/medterm/rules"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the normalization API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

// catalogSource picks where the registry loads rules from: the database,
// a file on disk, or the bundled default.
func catalogSource(cfg *config.Config, versions terminology.CatalogVersionRepository) terminology.CatalogSource {
	switch {
	case cfg.CatalogSource == config.SourceDatabase:
		return terminology.DatabaseSource{Repo: versions}
	case cfg.CatalogPath != "":
		return terminology.FileSource{Path: cfg.CatalogPath}
	default:
		return terminology.BytesSource{Name: rules.DefaultName, Data: rules.Default(), Format: terminology.FormatYAML}
	}
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	var pool *pgxpool.Pool
	if cfg.NeedsDatabase() {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to database")
			return err
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
	}

	metrics := telemetry.NewProvider()
	svc, err := buildService(ctx, cfg, pool, metrics, logger)
	if err != nil {
		return err
	}
	e := newServer(cfg, svc, metrics, pool, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("catalog_source", svc.Registry().Source().Describe()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if src, ok := svc.Registry().Source().(terminology.FileSource); ok && cfg.CatalogWatch {
		w, err := watch.New(src.Path, func(ctx context.Context) {
			// Failures are logged by the registry, which keeps the old catalog.
			_, _ = svc.Reload(ctx)
		}, logger.With().Str("component", "catalog-watch").Logger())
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// buildService wires repositories, the registry and metrics, and performs the
// initial catalog load. A server never starts without a valid catalog.
func buildService(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, metrics *telemetry.Provider, logger zerolog.Logger) (*terminology.Service, error) {
	var opts []terminology.ServiceOption
	var versions terminology.CatalogVersionRepository
	if pool != nil {
		versions = terminology.NewCatalogVersionRepoPG(pool)
		opts = append(opts,
			terminology.WithVersionRepository(versions),
			terminology.WithAuditRepository(terminology.NewAuditRepoPG(pool)),
		)
	}
	opts = append(opts,
		terminology.WithMetrics(metrics),
		terminology.WithLogger(logger.With().Str("component", "terminology").Logger()),
	)

	registry := terminology.NewRegistry(
		catalogSource(cfg, versions),
		terminology.LoadOptions{Strict: cfg.CatalogStrict},
		logger.With().Str("component", "catalog").Logger(),
	)
	registry.OnLoad(func(c *terminology.Catalog, err error) {
		if err != nil {
			metrics.CatalogLoaded("", 0, err)
			return
		}
		metrics.CatalogLoaded(c.Version(), c.TotalRules(), nil)
	})
	if _, err := registry.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial catalog load: %w", err)
	}

	return terminology.NewService(registry, terminology.ServiceConfig{
		MaxInputChars: cfg.MaxInputChars,
		NFC:           cfg.UnicodeNFC,
		Audit:         cfg.AuditEnabled,
	}, opts...), nil
}

func newServer(cfg *config.Config, svc *terminology.Service, metrics *telemetry.Provider, pool *pgxpool.Pool, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware. Recovery sits inside Logger so panics are logged
	// with their final status.
	e.Use(metrics.MetricsMiddleware())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))

	// Auth middleware
	if cfg.AuthSecret != "" {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSecret),
			Skipper:    auth.AuthSkipper,
		}))
	} else {
		logger.Warn().Msg("AUTH_SECRET not set, every request runs as admin")
		e.Use(auth.DevAuthMiddleware())
	}

	e.GET("/health", func(c echo.Context) error {
		status := map[string]string{"status": "ok", "version": version}
		if catalog, err := svc.Registry().Current(); err == nil {
			status["catalog_version"] = catalog.Version()
		}
		return c.JSON(http.StatusOK, status)
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	e.GET("/metrics", metrics.PrometheusHandler())

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	rateLimitCfg.OnLimited = func(echo.Context) { metrics.RateLimited() }
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	terminology.NewHandler(svc).RegisterRoutes(apiV1)
	return e
}
