package visibility

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/star/passwatch/internal/metrics"
	"github.com/star/passwatch/internal/tle"
	"github.com/star/passwatch/internal/transform"
)

// Config holds engine settings. Zero fields take defaults.
type Config struct {
	Workers int              // concurrent satellite scans (default: runtime.NumCPU())
	Sources SourceFactory    // default: SGP4Sources
	Now     func() time.Time // horizon anchor clock (default: time.Now)
}

// Engine runs visibility scans over many satellites.
// Safe for concurrent use.
type Engine struct {
	workers int
	sources SourceFactory
	now     func() time.Time
	logger  *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Sources == nil {
		cfg.Sources = SGP4Sources
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		workers: cfg.Workers,
		sources: cfg.Sources,
		now:     cfg.Now,
		logger:  logger,
	}
}

// ScanPasses scans every element set over the next 24 h from the engine clock
// and returns all passes at or above minEl, sorted by time.
func (e *Engine) ScanPasses(ctx context.Context, sets []tle.ElementSet, obs transform.ObserverPosition, minEl float64) ([]Pass, error) {
	return e.ScanPassesAt(ctx, sets, obs, minEl, e.now())
}

// ScanPassesAt is ScanPasses anchored at now.
//
// Each satellite is scanned in its own goroutine and writes only its own
// result slot. Slots are concatenated in input order and stable-sorted, so
// passes at the same instant keep the order of sets. Satellites whose
// element lines cannot be propagated are logged and left out.
func (e *Engine) ScanPassesAt(ctx context.Context, sets []tle.ElementSet, obs transform.ObserverPosition, minEl float64, now time.Time) ([]Pass, error) {
	if err := checkThreshold(minEl); err != nil {
		return nil, err
	}
	if !obs.Valid() {
		return nil, fmt.Errorf("%w: observer not initialized", transform.ErrInvalidObserver)
	}

	start := time.Now()
	results := make([]satScan, len(sets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, es := range sets {
		g.Go(func() error {
			res, err := e.scanOne(gctx, es, obs, now, minEl)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	passes := make([]Pass, 0)
	var skipped, sampleErrors int
	for _, r := range results {
		passes = append(passes, r.passes...)
		sampleErrors += r.sampleErrors
		if r.skipped {
			skipped++
		}
	}
	slices.SortStableFunc(passes, func(a, b Pass) int { return a.Time.Compare(b.Time) })

	duration := time.Since(start)
	metrics.RecordScan(duration, len(sets)-skipped, skipped, sampleErrors, len(passes))
	e.logger.Debug("scan complete",
		"satellites", len(sets),
		"skipped", skipped,
		"sample_errors", sampleErrors,
		"passes", len(passes),
		"min_elevation", minEl,
		"anchor", now.UTC().Format(time.RFC3339),
		"duration_ms", duration.Milliseconds(),
	)

	return passes, nil
}

// NextPass returns the earliest pass at DefaultMinElevation, or nil if there is none.
func (e *Engine) NextPass(ctx context.Context, sets []tle.ElementSet, obs transform.ObserverPosition) (*Pass, error) {
	passes, err := e.ScanPasses(ctx, sets, obs, DefaultMinElevation)
	if err != nil || len(passes) == 0 {
		return nil, err
	}
	p := passes[0]
	return &p, nil
}

// scanOne scans a single satellite. Adapter construction failures and panics
// are contained here so one bad element set cannot fail the whole scan.
func (e *Engine) scanOne(ctx context.Context, es tle.ElementSet, obs transform.ObserverPosition, now time.Time, minEl float64) (res satScan, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("satellite scan panicked", "name", es.Name, "norad_id", es.NORADID(), "panic", fmt.Sprint(r))
			res, err = satScan{skipped: true}, nil
		}
	}()

	src, err := e.sources(es, obs)
	if err != nil {
		e.logger.Warn("skipping satellite", "name", es.Name, "norad_id", es.NORADID(), "error", err)
		return satScan{skipped: true}, nil
	}

	return scanSatellite(ctx, src, es, now, minEl, e.logger)
}
