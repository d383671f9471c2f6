package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mauv0809/good-morning/internal/config"
	"github.com/mauv0809/good-morning/internal/db"
	"github.com/mauv0809/good-morning/internal/handlers"
	"github.com/mauv0809/good-morning/internal/ingest"
	"github.com/mauv0809/good-morning/internal/logging"
	"github.com/mauv0809/good-morning/internal/observability"
)

var version = "dev"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logging.Level)
	ctx := context.Background()

	// Database is optional: without it downloads are parsed but not stored
	var repo *db.Repository
	if cfg.Database.URL != "" {
		if cfg.Database.RunMigrations {
			if err := db.RunMigrations(cfg.Database.URL); err != nil {
				logger.Warn().Err(err).Msg("could not run migrations")
			} else {
				logger.Info().Msg("migrations completed")
			}
		}

		pool, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			logger.Warn().Err(err).Msg("could not connect to database, continuing without storage")
		} else {
			defer pool.Close()
			repo = db.NewRepository(pool)
			logger.Info().Msg("connected to database")
		}
	} else {
		logger.Warn().Msg("DATABASE_URL not set, downloads will not be stored")
	}

	client := ingest.NewClient(
		ingest.WithRateLimit(cfg.Source.RateLimit),
		ingest.WithTimeout(cfg.Source.GetTimeout()),
		ingest.WithRetries(cfg.Source.Retries),
		ingest.WithClientLogger(logger),
	)

	opts := []ingest.Option{
		ingest.WithBaseURL(cfg.Source.BaseURL),
		ingest.WithTablePrefix(cfg.Database.TablePrefix),
		ingest.WithLogger(logger),
	}
	var runs handlers.RunLog
	if repo != nil {
		opts = append(opts, ingest.WithStore(repo))
		runs = repo
	}
	downloader := ingest.NewDownloader(observability.NewFetcher(client), opts...)

	keyRatios := ingest.KeyRatioOptions{
		Region:   cfg.Source.Region,
		Culture:  cfg.Source.Culture,
		Currency: cfg.Source.Currency,
	}
	ingestHandler := handlers.NewIngestHandler(downloader, runs, keyRatios, cfg.Source.GetDelay(), logger)
	h := handlers.New(version)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := logger.Info()
			if v.Error != nil {
				event = logger.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(observability.Middleware())

	// Routes
	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/tickers/:ticker/keyratios", ingestHandler.PreviewKeyRatios)

	// Admin routes for data ingestion
	admin := e.Group("/admin")
	admin.GET("/ingest/status", ingestHandler.IngestStatus)
	admin.POST("/ingest/keyratios", ingestHandler.IngestKeyRatios)
	admin.POST("/ingest/financials", ingestHandler.IngestFinancials)
	admin.POST("/ingest/statements", ingestHandler.IngestStatements)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info().Str("addr", addr).Str("environment", cfg.Environment).Msg("starting server")
	if err := e.Start(addr); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
