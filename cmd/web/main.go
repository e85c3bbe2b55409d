package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"superstore-dashboard/internal/charts"
	"superstore-dashboard/internal/config"
	"superstore-dashboard/internal/dataset"
	"superstore-dashboard/internal/handlers"
	"superstore-dashboard/internal/middleware"
	"superstore-dashboard/internal/observability"
	"superstore-dashboard/internal/server"
	"superstore-dashboard/internal/services"
)

const (
	janitorInterval = time.Minute
	// Multipart framing on top of the largest accepted file.
	bodyOverhead = 1 << 20
)

type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	analytics  *services.Analytics
	chartCache *charts.ChartCache
	limiter    *middleware.RateLimiter
	handler    http.Handler
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	loader := dataset.NewLoader(dataset.Options{
		FallbackFile: cfg.Dataset.FallbackFile,
		CacheDir:     cfg.Dataset.CacheDir,
		Logger:       logger,
	})
	analytics := services.NewAnalytics(services.Options{
		Loader:        loader,
		UploadTTL:     cfg.Dataset.UploadTTL,
		MaxDatasets:   cfg.Dataset.MaxDatasets,
		FallbackRetry: cfg.Dataset.FallbackRetry,
		LoadTimeout:   cfg.Dataset.LoadTimeout,
		Logger:        logger,
	})

	chartCache := charts.NewChartCache(cfg.Charts.CacheTTL)
	renderer := charts.NewRenderer(
		charts.WithTheme(cfg.Charts.Theme),
		charts.WithAssetsHost(cfg.Charts.AssetsHost),
		charts.WithCache(chartCache),
	)

	srv := server.NewServer(handlers.Deps{
		Analytics:      analytics,
		Renderer:       renderer,
		Background:     handlers.NewBackground(),
		Logger:         logger,
		TableRowLimit:  cfg.Dataset.TableRowLimit,
		MaxUploadBytes: cfg.Dataset.MaxUploadBytes,
	})

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(cfg.Charts.AssetsHost),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
		middleware.BodyLimit(cfg.Dataset.MaxUploadBytes+bodyOverhead, logger),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		analytics:  analytics,
		chartCache: chartCache,
		limiter:    rateLimiter,
		handler:    middlewareChain(srv),
	}
}

// loadFallback loads the bundled dataset. A failure is logged and the
// dashboard keeps serving uploads.
func (a *app) loadFallback(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Dataset.LoadTimeout)
	defer cancel()

	start := time.Now()
	if err := a.analytics.LoadFallback(ctx); err != nil {
		a.logger.Warn("default dataset unavailable", "file", a.cfg.Dataset.FallbackFile, "error", err)
		return
	}
	a.logger.Info("default dataset loaded", "file", a.cfg.Dataset.FallbackFile, "duration", time.Since(start))
}

// runBackground expires uploads, idle rate limit buckets and stale charts
// until ctx is done.
func (a *app) runBackground(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.analytics.RunJanitor(ctx, janitorInterval)
		return nil
	})
	g.Go(func() error {
		a.limiter.Run(ctx, janitorInterval)
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := a.chartCache.Purge(); n > 0 {
					a.logger.Debug("purged cached charts", "count", n)
				}
			}
		}
	})
	return g.Wait()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"addr", cfg.Address(),
		"fallback_file", cfg.Dataset.FallbackFile,
	)

	a := newApp(cfg, logger)
	a.loadFallback(context.Background())

	bgCtx, stopBackground := context.WithCancel(context.Background())
	bgDone := make(chan error, 1)
	go func() { bgDone <- a.runBackground(bgCtx) }()

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("stopping background workers")
		stopBackground()
		select {
		case err := <-bgDone:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
