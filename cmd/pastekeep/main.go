package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"pastekeep/internal/cache"
	"pastekeep/internal/config"
	"pastekeep/internal/httpserver"
	"pastekeep/internal/metrics"
	"pastekeep/internal/ratelimit"
	"pastekeep/internal/service"
	"pastekeep/internal/storage/sqlitestore"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	metrics.Init()

	store, err := sqlitestore.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed opening data store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var listCache *cache.Cache
	if cfg.CacheDir != "" {
		listCache, err = cache.Open(cfg.CacheDir, logger)
		if err != nil {
			logger.Error("failed opening listing cache", "error", err)
			os.Exit(1)
		}
		defer listCache.Close()
	}

	var limiter *ratelimit.Limiter
	if cfg.LimiterPath != "" {
		limiter, err = ratelimit.Open(cfg.LimiterPath, cfg.Quota, cfg.QuotaWindow, logger)
		if err != nil {
			logger.Error("failed opening rate limiter", "error", err)
			os.Exit(1)
		}
		defer limiter.Close()
	}

	svc, err := service.New(service.Config{
		Store:    store,
		Cache:    listCache,
		Limiter:  limiter,
		Logger:   logger,
		MaxBytes: cfg.MaxBytes,
		CacheTTL: cfg.CacheTTL,
	})
	if err != nil {
		logger.Error("failed to construct service", "error", err)
		os.Exit(1)
	}

	identityHeader := cfg.IdentityHeader
	srv, err := httpserver.New(httpserver.Config{
		Service:    svc,
		Logger:     logger,
		Limiter:    httpserver.NewIPLimiter(rate.Limit(10), 20, 15*time.Minute),
		MaxBytes:   cfg.MaxBytes,
		TrustProxy: cfg.TrustProxy,
		CurrentUser: func(r *http.Request) string {
			return r.Header.Get(identityHeader)
		},
	})
	if err != nil {
		logger.Error("failed to construct server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srvHTTP := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := srvHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	case err := <-errCh:
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
