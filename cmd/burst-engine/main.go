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

	"github.com/fretbursts/burst-engine/internal/api"
	"github.com/fretbursts/burst-engine/internal/cache"
	"github.com/fretbursts/burst-engine/internal/config"
	"github.com/fretbursts/burst-engine/internal/engine"
	"github.com/fretbursts/burst-engine/internal/metrics"
	"github.com/fretbursts/burst-engine/internal/services"
	"github.com/fretbursts/burst-engine/internal/utils"
)

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
	logger.Info("starting burst-engine", slog.String("address", cfg.Server.Address))

	if _, err := cfg.SearchParams(); err != nil {
		logger.Error("invalid default search parameters", slog.Any("error", err))
		os.Exit(1)
	}
	if _, _, err := cfg.FusionGapTicks(); err != nil {
		logger.Error("invalid fusion settings", slog.Any("error", err))
		os.Exit(1)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var provider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		provider = cache.NewMemoryProvider(cfg.Cache.MaxEntries)
	}
	results := cache.NewResultCache(provider, cfg.Cache.TTL, logger)
	defer results.Close()

	pipeline := engine.NewPipeline(logger, engine.NewSearcher(logger), cfg.Search.Workers)
	burstService := services.NewBurstService(logger, pipeline, results).
		WithDefaults(services.DefaultsFromConfig(cfg.Search))

	server, err := api.NewServer(cfg.Server, burstService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		metricsServer = &http.Server{
			Addr: cfg.Server.MetricsAddress,
			Handler: api.NewAdminRouter(api.AdminOptions{
				Ready: server.Serving,
				Stats: func() any { return burstService.Stats() },
			}),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("admin server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("admin server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("burst-engine stopped")
}
