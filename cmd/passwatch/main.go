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

	"github.com/star/passwatch/internal/api"
	"github.com/star/passwatch/internal/auth"
	"github.com/star/passwatch/internal/config"
	"github.com/star/passwatch/internal/logging"
	"github.com/star/passwatch/internal/metrics"
	"github.com/star/passwatch/internal/tle"
	"github.com/star/passwatch/internal/visibility"
)

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.FromEnvironment(bootLogger)
	if err != nil {
		bootLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(os.Stdout, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		bootLogger.Error("invalid log configuration", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if cfg.Auth.Enabled {
		logger.Info("auth enabled")
	}
	logger.Info("TLE config",
		"fetch_enabled", cfg.TLE.FetchEnabled,
		"source_url", cfg.TLE.SourceURL,
		"extra_urls", cfg.TLE.ExtraURLs,
		"cache_dir", cfg.TLE.CacheDir,
		"max_age_seconds", cfg.TLE.MaxAge.Std().Seconds(),
	)
	logger.Info("scan config",
		"workers", cfg.Scan.Workers,
		"max_per_client", cfg.Scan.MaxPerClient,
		"cache_size", cfg.Scan.CacheSize,
		"cache_ttl_seconds", cfg.Scan.CacheTTL.Std().Seconds(),
	)

	store := tle.NewStore()
	var fetcher *tle.Fetcher
	if cfg.TLE.FetchEnabled {
		fetcher = tle.NewFetcher(cfg.TLE.SourceURL, logger, cfg.TLE.ExtraURLs...)
	}
	loader := tle.NewLoader(store, fetcher, tle.NewCache(cfg.TLE.CacheDir, cfg.TLE.MaxFiles), logger)

	// Serve from the last snapshot while the first fetch is in flight.
	if err := loader.LoadCached(); err != nil {
		logger.Info("no usable TLE cache, starting without TLE data", "error", err)
	}

	engine := visibility.NewEngine(visibility.Config{Workers: cfg.Scan.Workers}, logger)

	srv := api.NewServer(api.Options{
		Addr:           cfg.HTTP.Addr,
		TrustProxy:     cfg.HTTP.TrustProxy,
		Auth:           auth.Config{Enabled: cfg.Auth.Enabled, Token: cfg.Auth.Token},
		MaxPerClient:   cfg.Scan.MaxPerClient,
		CacheSize:      cfg.Scan.CacheSize,
		CacheTTL:       cfg.Scan.CacheTTL.Std(),
		RequestTimeout: cfg.HTTP.RequestTimeout.Std(),
	}, logger, store, loader, engine)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if fetcher != nil {
		go loader.Run(ctx, cfg.TLE.RefreshInterval.Std(), cfg.TLE.MaxAge.Std())
	}

	// Background goroutine to update TLE dataset age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age, ok := store.Age(time.Now()); ok {
					metrics.SetTLEDatasetAge(age.Seconds())
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server", "addr", cfg.HTTP.Addr, "auth_enabled", cfg.Auth.Enabled, "tle_fetch_enabled", cfg.TLE.FetchEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
