package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/faultlinehq/faultline/internal/api"
	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/config"
	"github.com/faultlinehq/faultline/internal/correlation"
	"github.com/faultlinehq/faultline/internal/issues"
	"github.com/faultlinehq/faultline/internal/metrics"
	"github.com/faultlinehq/faultline/internal/services"
	"github.com/faultlinehq/faultline/internal/storage"
	"github.com/faultlinehq/faultline/internal/utils"
)

// appStorage is the subset of the storage backends shared by both
// implementations.
type appStorage interface {
	Events() storage.EventLedger
	Issues() storage.IssueRepository
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting faultline", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	store, err := openStorage(cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		cacheProvider = cache.NewMemoryProvider()
	}
	defer cacheProvider.Close()

	engine := issues.NewEngine(logger, store.Issues(), store.Events())
	analyzer := correlation.NewAnalyzer(cfg.Correlation.Window)
	svc := services.NewIngestService(logger, store.Events(), store.Issues(), engine, analyzer, cacheProvider, cfg.Cache.TimelineTTL)

	handler := api.NewHandler(logger, svc, store)
	limiter := api.NewIngestLimiter(cfg.Ingest.RateLimit, cfg.Ingest.RateBurst)
	router := api.NewRouter(handler, limiter)

	server, err := api.NewServer(cfg.Server, router)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		group.Go(func() error {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		logger.Info("api server listening", slog.String("address", server.Address()))
		return server.Start()
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)

		if metricsServer != nil {
			metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelMetrics()
			if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server shutdown", slog.Any("error", err))
			}
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("faultline stopped")
}

func openStorage(cfg config.StorageConfig, logger *slog.Logger) (appStorage, error) {
	switch cfg.Backend {
	case "memory":
		logger.Warn("using in-memory storage, data is not persisted")
		return storage.NewMemoryStorage(), nil
	default:
		store := storage.NewSQLiteStorage(cfg.Path)
		if err := store.Open(); err != nil {
			return nil, err
		}
		if err := store.Migrate(); err != nil {
			store.Close()
			return nil, err
		}
		logger.Info("sqlite storage ready", slog.String("path", cfg.Path))
		return store, nil
	}
}
