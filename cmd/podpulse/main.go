package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inelson/podpulse/internal/clustercache"
	"github.com/inelson/podpulse/internal/collector"
	collectork8s "github.com/inelson/podpulse/internal/collector/kubernetes"
	"github.com/inelson/podpulse/internal/config"
	"github.com/inelson/podpulse/internal/server"
	"github.com/inelson/podpulse/internal/stream"
	"github.com/inelson/podpulse/internal/visits"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()
	cfg.Version = version

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting podpulse", "version", version, "commit", commit, "build_time", buildTime)

	cache := clustercache.New(logger)
	hub := stream.NewHub(cache, logger)

	fetcherCfg := collectork8s.Config{
		Namespace:  cfg.Namespace,
		Kubeconfig: cfg.Kubeconfig,
		Timeout:    cfg.FetchTimeout,
	}
	fetcher, err := collectork8s.New(fetcherCfg, cache, logger)
	if err != nil {
		logger.Error("could not load kubeconfig, running without k8s integration", "error", err)
		fetcher = collectork8s.NewWithClients(nil, nil, fetcherCfg, cache, logger)
	} else {
		logger.Info("kubernetes client configured", "namespace", fetcher.Namespace())
	}

	counter := visits.NewRedis(cfg.RedisAddr(), cfg.VisitsKey, logger)
	defer counter.Close()
	logger.Info("visit counter configured", "addr", cfg.RedisAddr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("fetching initial pod data")
	cache.Store(fetcher.Fetch(ctx))
	logger.Info("initial pod data loaded", "pods", cache.Load().PodCount)

	scheduler := collector.NewScheduler(fetcher, cache, hub, collector.SchedulerConfig{
		Interval: cfg.RefreshInterval,
	}, logger)
	go scheduler.Start(ctx)

	srv := server.New(cfg, hub, fetcher, cache, counter, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("podpulse started", "addr", cfg.HTTPAddr)
	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("podpulse stopped")
}
