// Package main wires together the trending snapshot service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/TangyRyan/Weibo-project-zy/internal/api"
	"github.com/TangyRyan/Weibo-project-zy/internal/broadcast"
	"github.com/TangyRyan/Weibo-project-zy/internal/clock/system"
	"github.com/TangyRyan/Weibo-project-zy/internal/config"
	"github.com/TangyRyan/Weibo-project-zy/internal/fetch"
	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
	"github.com/TangyRyan/Weibo-project-zy/internal/logging"
	"github.com/TangyRyan/Weibo-project-zy/internal/metrics"
	"github.com/TangyRyan/Weibo-project-zy/internal/orchestrator"
	"github.com/TangyRyan/Weibo-project-zy/internal/source"
	"github.com/TangyRyan/Weibo-project-zy/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	clock := system.New()
	fetcher := fetch.New(fetch.Config{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MinInterval: time.Duration(cfg.Fetch.MinIntervalMs) * time.Millisecond,
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BackoffBase: time.Duration(cfg.Fetch.BackoffInitialMs) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.Fetch.BackoffMaxMs) * time.Millisecond,
	}, logger.Named("fetch"))

	remote := source.NewRemoteClient(fetcher, cfg.Remote.BaseURL, clock, logger.Named("remote"))
	fallback := source.NewFallbackCrawler(fetcher, source.FallbackConfig{
		Endpoints: []source.Endpoint{
			{URL: cfg.Fallback.HotSearchURL, Extractor: source.NewHotSearchExtractor(cfg.Fallback.SearchURL)},
			{URL: cfg.Fallback.SummaryURL, Extractor: source.NewSummaryExtractor(cfg.Fallback.SummaryURL)},
		},
		MaxTopics: cfg.Fallback.MaxTopics,
		Referer:   cfg.Fallback.SummaryURL,
		Cookie:    cfg.Fallback.Cookie,
	}, clock, logger.Named("fallback"))

	var snapStore hotspot.Store
	switch cfg.Storage.Provider {
	case "postgres":
		pgStore, err := store.NewPostgres(ctx, store.PostgresConfig{
			DSN:      cfg.Storage.Postgres.DSN,
			Table:    cfg.Storage.Postgres.Table,
			MaxConns: cfg.Storage.Postgres.MaxConns,
		})
		if err != nil {
			logger.Fatal("postgres store init failed", zap.Error(err))
		}
		defer pgStore.Close()
		snapStore = pgStore
	default:
		fsStore, err := store.NewFS(cfg.Storage.FS.BaseDir)
		if err != nil {
			logger.Fatal("fs store init failed", zap.Error(err))
		}
		snapStore = fsStore
	}

	cache := hotspot.NewCache()
	hub := broadcast.NewHub(cache, snapStore, clock, broadcast.HubConfig{
		DefaultLimit: cfg.Broadcast.DefaultLimit,
		MaxLimit:     cfg.Broadcast.MaxLimit,
		SendBuffer:   cfg.Broadcast.SendBuffer,
	}, logger.Named("broadcast"))

	orch := orchestrator.New(remote, fallback, snapStore, cache, hub, clock, orchestrator.Config{
		PollInterval:     time.Duration(cfg.Orchestrator.PollIntervalSeconds) * time.Second,
		RetryInterval:    time.Duration(cfg.Orchestrator.RetryIntervalSeconds) * time.Second,
		FallbackDeadline: time.Duration(cfg.Orchestrator.FallbackDeadlineMinutes) * time.Minute,
		LookbackDays:     cfg.Orchestrator.LookbackDays,
	}, logger.Named("orchestrator"))

	apiServer := api.NewServer(snapStore, cache, hub, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("broadcast hub started")
		hub.Run(ctx)
	}()

	go func() {
		logger.Info("acquisition loop started")
		orch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
