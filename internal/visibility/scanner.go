package visibility

import (
	"context"
	"log/slog"
	"time"

	"github.com/star/passwatch/internal/tle"
)

// scanState is whether the last usable sample was above the threshold.
type scanState uint8

const (
	searching scanState = iota
	inPass
)

// next applies one usable sample and reports whether it is a rising edge.
func (s scanState) next(elevationDeg, minEl float64) (scanState, bool) {
	if elevationDeg < minEl {
		return searching, false
	}
	return inPass, s == searching
}

// satScan is the outcome of scanning one satellite.
type satScan struct {
	passes       []Pass
	sampleErrors int
	skipped      bool
}

// scanSatellite samples src over [now, now+Horizon) and returns the rising
// edges found. Only context cancellation is returned as an error.
func scanSatellite(ctx context.Context, src Source, es tle.ElementSet, now time.Time, minEl float64, logger *slog.Logger) (satScan, error) {
	var (
		res      satScan
		state    = searching
		resumeAt time.Time
		end      = now.Add(Horizon)
		noradID  = es.NORADID()
	)

	for t := now; t.Before(end); {
		if !resumeAt.IsZero() && t.Before(resumeAt) {
			t, resumeAt = resumeAt, time.Time{}
			continue
		}

		if err := ctx.Err(); err != nil {
			return res, err
		}

		la, err := src.LookAngles(t)
		if err != nil {
			res.sampleErrors++
			logger.Debug("skipping sample", "name", es.Name, "norad_id", noradID, "time", t, "error", err)
			t = t.Add(Step)
			continue
		}

		var rising bool
		state, rising = state.next(la.ElevationDeg, minEl)
		if rising {
			res.passes = append(res.passes, Pass{
				SatelliteName: es.Name,
				NORADID:       noradID,
				Time:          t,
				ElevationDeg:  la.ElevationDeg,
				AzimuthDeg:    la.AzimuthDeg,
				RangeKm:       la.RangeKm,
			})
			resumeAt = t.Add(SkipAhead)
		}

		t = t.Add(Step)
	}

	return res, nil
}
