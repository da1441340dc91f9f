package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/passwatch/internal/metrics"
)

// ErrFetchDisabled is returned by Refresh when the loader has no fetcher.
var ErrFetchDisabled = errors.New("TLE fetching is disabled")

// Loader keeps a Store populated from the disk cache and a remote Fetcher.
type Loader struct {
	store   *Store
	fetcher *Fetcher
	cache   *Cache
	logger  *slog.Logger
}

// NewLoader wires a store to its fetcher and cache. fetcher may be nil when
// remote fetching is disabled.
func NewLoader(store *Store, fetcher *Fetcher, cache *Cache, logger *slog.Logger) *Loader {
	return &Loader{store: store, fetcher: fetcher, cache: cache, logger: logger}
}

// LoadCached populates the store from the newest cache snapshot.
func (l *Loader) LoadCached() error {
	data, ts, err := l.cache.LoadLatest()
	if err != nil {
		return err
	}

	sets, err := Parse(bytes.NewReader(data), l.logger)
	if err != nil {
		return fmt.Errorf("parsing cached TLE data: %w", err)
	}
	if len(sets) == 0 {
		return fmt.Errorf("cached TLE snapshot from %s has no valid entries", ts.Format(time.RFC3339))
	}

	l.store.Install(NewDataset("cache", ts, sets))
	l.logger.Info("loaded TLE data from cache", "count", len(sets), "cached_at", ts.Format(time.RFC3339))
	return nil
}

// Refresh fetches, parses and installs a new dataset, then writes it to the cache.
// A cache write failure is logged but does not fail the refresh.
func (l *Loader) Refresh(ctx context.Context) (*Dataset, error) {
	if l.fetcher == nil {
		return nil, ErrFetchDisabled
	}

	l.store.refresh.Lock()
	defer l.store.refresh.Unlock()

	start := time.Now()
	data, err := l.fetcher.Fetch(ctx)
	if err != nil {
		metrics.IncTLEFetch("error")
		return nil, err
	}

	sets, err := Parse(bytes.NewReader(data), l.logger)
	if err != nil {
		metrics.IncTLEFetch("error")
		return nil, fmt.Errorf("parsing fetched TLE data: %w", err)
	}
	if len(sets) == 0 {
		metrics.IncTLEFetch("error")
		return nil, fmt.Errorf("fetched TLE data from %s has no valid entries", l.fetcher.SourceURL())
	}

	now := time.Now()
	ds := NewDataset(l.fetcher.SourceURL(), now, sets)
	l.store.Install(ds)
	metrics.IncTLEFetch("ok")

	if err := l.cache.Write(data, now); err != nil {
		l.logger.Warn("failed to write TLE cache", "error", err)
	}

	l.logger.Info("TLE dataset refreshed",
		"count", len(sets),
		"source", ds.Source,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ds, nil
}

// Run refreshes the dataset whenever it is missing or older than maxAge,
// checking every interval. Blocks until ctx is cancelled.
func (l *Loader) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if l.store.Stale(time.Now(), maxAge) {
			if _, err := l.Refresh(ctx); err != nil && ctx.Err() == nil {
				l.logger.Warn("TLE refresh failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			l.logger.Info("TLE refresher stopped")
			return
		case <-ticker.C:
		}
	}
}
