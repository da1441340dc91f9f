package visibility

import (
	"context"
	"time"

	"github.com/star/passwatch/internal/metrics"
	"github.com/star/passwatch/internal/tle"
	"github.com/star/passwatch/internal/transform"
)

// fallbackThresholds is the escalation ladder used by FindNextPass, in degrees.
var fallbackThresholds = []float64{DefaultMinElevation, 15, 5}

// NextPassResult is the answer of a next-pass lookup.
// When Found is false, Pass is nil and MinElevation is the lowest threshold tried.
type NextPassResult struct {
	Pass         *Pass   `json:"pass"`
	MinElevation float64 `json:"min_elevation"`
	Found        bool    `json:"found"`
}

// FindNextPass looks for the earliest pass at 25°, then 15°, then 5°.
// Finding nothing is a normal result, not an error.
func (e *Engine) FindNextPass(ctx context.Context, sets []tle.ElementSet, obs transform.ObserverPosition) (NextPassResult, error) {
	return e.FindNextPassAt(ctx, sets, obs, e.now())
}

// FindNextPassAt is FindNextPass anchored at now. Every rung is a full,
// independent scan sharing only the anchor.
func (e *Engine) FindNextPassAt(ctx context.Context, sets []tle.ElementSet, obs transform.ObserverPosition, now time.Time) (NextPassResult, error) {
	for _, minEl := range fallbackThresholds {
		passes, err := e.ScanPassesAt(ctx, sets, obs, minEl, now)
		if err != nil {
			return NextPassResult{}, err
		}
		if len(passes) > 0 {
			metrics.RecordNextPass(minEl)
			p := passes[0]
			return NextPassResult{Pass: &p, MinElevation: minEl, Found: true}, nil
		}
		e.logger.Debug("no pass in horizon", "min_elevation", minEl)
	}

	metrics.RecordNextPass(-1)
	return NextPassResult{MinElevation: fallbackThresholds[len(fallbackThresholds)-1]}, nil
}
