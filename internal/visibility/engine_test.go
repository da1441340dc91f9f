package visibility

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/passwatch/internal/tle"
	"github.com/star/passwatch/internal/transform"
)

var (
	testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	anchor     = time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)
	errNoFix   = errors.New("no fix")
)

// curve is a scripted elevation profile, in minutes after anchor.
type curve func(min float64) (float64, error)

func (c curve) LookAngles(t time.Time) (transform.LookAngles, error) {
	el, err := c(t.Sub(anchor).Minutes())
	if err != nil {
		return transform.LookAngles{}, err
	}
	return transform.LookAngles{AzimuthDeg: 180, ElevationDeg: el, RangeKm: 1000}, nil
}

// window is above (40°) inside any of the [from, to] minute ranges, below (-10°) elsewhere.
func window(ranges ...[2]float64) curve {
	return func(min float64) (float64, error) {
		for _, r := range ranges {
			if min >= r[0] && min <= r[1] {
				return 40, nil
			}
		}
		return -10, nil
	}
}

func constant(el float64) curve {
	return func(float64) (float64, error) { return el, nil }
}

type panicSource struct{}

func (panicSource) LookAngles(time.Time) (transform.LookAngles, error) {
	panic("propagator blew up")
}

// scripted maps element set names to sources. Unknown names fail construction.
func scripted(sources map[string]Source) SourceFactory {
	return func(es tle.ElementSet, _ transform.ObserverPosition) (Source, error) {
		src, ok := sources[es.Name]
		if !ok {
			return nil, fmt.Errorf("no source for %q", es.Name)
		}
		return src, nil
	}
}

func sat(name string, id int) tle.ElementSet {
	return tle.ElementSet{Name: name, Line1: fmt.Sprintf("1 %05dU", id)}
}

func nyc(t *testing.T) transform.ObserverPosition {
	t.Helper()
	obs, err := transform.NewObserver(40.7128, -74.006, 0)
	require.NoError(t, err)
	return obs
}

func newTestEngine(sources map[string]Source, workers int) *Engine {
	return NewEngine(Config{
		Workers: workers,
		Sources: scripted(sources),
		Now:     func() time.Time { return anchor },
	}, testLogger)
}

func offsets(passes []Pass) []float64 {
	out := make([]float64, len(passes))
	for i, p := range passes {
		out[i] = p.Time.Sub(anchor).Minutes()
	}
	return out
}

func TestScanSatelliteCurves(t *testing.T) {
	tests := []struct {
		name  string
		src   curve
		minEl float64
		want  []float64
	}{
		{
			name:  "rising edge recorded at first sample above",
			src:   window([2]float64{18, 32}),
			minEl: 25,
			want:  []float64{20},
		},
		{
			name: "periodic passes every two hours",
			src: func(min float64) (float64, error) {
				if math.Mod(min, 120) < 10 {
					return 40, nil
				}
				return -10, nil
			},
			minEl: 25,
			want:  []float64{0, 120, 240, 360, 480, 600, 720, 840, 960, 1080, 1200, 1320},
		},
		{
			name:  "continuously visible is one pass",
			src:   constant(60),
			minEl: 25,
			want:  []float64{0},
		},
		{
			name:  "still above at resume is not a new pass",
			src:   window([2]float64{0, 100}, [2]float64{200, 210}),
			minEl: 25,
			want:  []float64{0, 200},
		},
		{
			name:  "second pass inside skip window is missed",
			src:   window([2]float64{0, 5}, [2]float64{40, 50}),
			minEl: 25,
			want:  []float64{0},
		},
		{
			name:  "pass shorter than a step can fall between samples",
			src:   window([2]float64{21, 24}),
			minEl: 25,
			want:  nil,
		},
		{
			name:  "threshold is inclusive",
			src:   func(min float64) (float64, error) { return map[bool]float64{true: 25, false: 24.99}[min == 30], nil },
			minEl: 25,
			want:  []float64{30},
		},
		{
			name:  "last sample before horizon end",
			src:   window([2]float64{1435, 1e9}),
			minEl: 25,
			want:  []float64{1435},
		},
		{
			name:  "horizon end is exclusive",
			src:   window([2]float64{1440, 1e9}),
			minEl: 25,
			want:  nil,
		},
		{
			name:  "never above",
			src:   constant(-45),
			minEl: 0,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := scanSatellite(context.Background(), tt.src, sat("TEST", 1), anchor, tt.minEl, testLogger)
			require.NoError(t, err)
			assert.Equal(t, tt.want, nilIfEmpty(offsets(res.passes)))
			for _, p := range res.passes {
				assert.GreaterOrEqual(t, p.ElevationDeg, tt.minEl)
			}
		})
	}
}

func nilIfEmpty(s []float64) []float64 {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestScanSatelliteInvalidSamples(t *testing.T) {
	t.Run("skipped before first valid sample", func(t *testing.T) {
		src := curve(func(min float64) (float64, error) {
			if min < 20 {
				return 0, errNoFix
			}
			if min <= 30 {
				return 40, nil
			}
			return -10, nil
		})
		res, err := scanSatellite(context.Background(), src, sat("TEST", 1), anchor, 25, testLogger)
		require.NoError(t, err)
		assert.Equal(t, []float64{20}, offsets(res.passes))
		assert.Equal(t, 4, res.sampleErrors)
	})

	t.Run("state kept across invalid samples", func(t *testing.T) {
		src := curve(func(min float64) (float64, error) {
			switch {
			case min == 95 || min == 100:
				return 0, errNoFix
			case min <= 200:
				return 40, nil
			default:
				return -10, nil
			}
		})
		res, err := scanSatellite(context.Background(), src, sat("TEST", 1), anchor, 25, testLogger)
		require.NoError(t, err)
		assert.Equal(t, []float64{0}, offsets(res.passes))
		assert.Equal(t, 2, res.sampleErrors)
	})

	t.Run("every sample invalid", func(t *testing.T) {
		src := curve(func(float64) (float64, error) { return 0, errNoFix })
		res, err := scanSatellite(context.Background(), src, sat("TEST", 1), anchor, 25, testLogger)
		require.NoError(t, err)
		assert.Empty(t, res.passes)
		assert.Equal(t, 288, res.sampleErrors)
	})
}

func TestScanPassesSortedAcrossSatellites(t *testing.T) {
	e := newTestEngine(map[string]Source{
		"LATE":  window([2]float64{40, 45}),
		"EARLY": window([2]float64{10, 15}),
	}, 4)

	passes, err := e.ScanPasses(context.Background(), []tle.ElementSet{sat("LATE", 2), sat("EARLY", 1)}, nyc(t), 25)
	require.NoError(t, err)
	require.Len(t, passes, 2)
	assert.Equal(t, "EARLY", passes[0].SatelliteName)
	assert.Equal(t, 1, passes[0].NORADID)
	assert.Equal(t, anchor.Add(10*time.Minute), passes[0].Time)
	assert.Equal(t, "LATE", passes[1].SatelliteName)
	assert.Equal(t, anchor.Add(40*time.Minute), passes[1].Time)
}

func TestScanPassesStableForTies(t *testing.T) {
	sources := map[string]Source{
		"A": window([2]float64{10, 15}),
		"B": window([2]float64{10, 15}),
	}
	obs := nyc(t)

	for _, order := range [][]string{{"A", "B"}, {"B", "A"}} {
		e := newTestEngine(sources, 8)
		passes, err := e.ScanPasses(context.Background(), []tle.ElementSet{sat(order[0], 1), sat(order[1], 2)}, obs, 25)
		require.NoError(t, err)
		require.Len(t, passes, 2)
		assert.Equal(t, order[0], passes[0].SatelliteName)
		assert.Equal(t, order[1], passes[1].SatelliteName)
	}
}

func TestScanPassesIsolatesFailures(t *testing.T) {
	e := newTestEngine(map[string]Source{
		"GOOD":  window([2]float64{30, 35}),
		"PANIC": panicSource{},
	}, 2)

	sets := []tle.ElementSet{sat("BROKEN", 9), sat("PANIC", 8), sat("GOOD", 7)}
	passes, err := e.ScanPasses(context.Background(), sets, nyc(t), 25)
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, "GOOD", passes[0].SatelliteName)
}

func TestScanPassesRejectsBadInput(t *testing.T) {
	e := newTestEngine(map[string]Source{"A": constant(40)}, 1)
	sets := []tle.ElementSet{sat("A", 1)}

	_, err := e.ScanPasses(context.Background(), sets, transform.ObserverPosition{}, 25)
	assert.ErrorIs(t, err, transform.ErrInvalidObserver)

	for _, minEl := range []float64{90.5, -91, math.NaN(), math.Inf(1)} {
		_, err := e.ScanPasses(context.Background(), sets, nyc(t), minEl)
		assert.ErrorIs(t, err, ErrInvalidThreshold, "minEl=%v", minEl)
	}
}

func TestScanPassesEmptyInput(t *testing.T) {
	e := newTestEngine(nil, 1)
	passes, err := e.ScanPasses(context.Background(), nil, nyc(t), 25)
	require.NoError(t, err)
	assert.NotNil(t, passes)
	assert.Empty(t, passes)
}

func TestScanPassesCancelled(t *testing.T) {
	e := newTestEngine(map[string]Source{"A": constant(40)}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.ScanPasses(ctx, []tle.ElementSet{sat("A", 1)}, nyc(t), 25)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanPassesDeterministic(t *testing.T) {
	sources := map[string]Source{}
	var sets []tle.ElementSet
	for i := range 20 {
		name := fmt.Sprintf("SAT-%02d", i)
		start := float64((i * 35) % 300)
		sources[name] = window([2]float64{start, start + 10}, [2]float64{start + 600, start + 700})
		sets = append(sets, sat(name, i+1))
	}
	obs := nyc(t)

	serial, err := newTestEngine(sources, 1).ScanPasses(context.Background(), sets, obs, 25)
	require.NoError(t, err)
	parallel, err := newTestEngine(sources, 8).ScanPasses(context.Background(), sets, obs, 25)
	require.NoError(t, err)
	again, err := newTestEngine(sources, 8).ScanPasses(context.Background(), sets, obs, 25)
	require.NoError(t, err)

	assert.Len(t, serial, 40)
	assert.Equal(t, serial, parallel)
	assert.Equal(t, parallel, again)
}

func TestScanPassesLowerThresholdFindsAtLeastAsMany(t *testing.T) {
	// Peaks every 2 h with heights cycling through 10°, 20°, 30°, 40°.
	peaks := curve(func(min float64) (float64, error) {
		if math.Mod(min, 120) >= 10 {
			return -10, nil
		}
		return float64(10 * (1 + int(min/120)%4)), nil
	})
	e := newTestEngine(map[string]Source{"P": peaks}, 1)
	sets := []tle.ElementSet{sat("P", 1)}
	obs := nyc(t)

	prev := -1
	for _, minEl := range []float64{45, 35, 25, 15, 5} {
		passes, err := e.ScanPasses(context.Background(), sets, obs, minEl)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(passes), prev, "minEl=%v", minEl)
		prev = len(passes)
	}
	assert.Equal(t, 12, prev)
}

func TestNextPass(t *testing.T) {
	e := newTestEngine(map[string]Source{
		"LOW":  window([2]float64{5, 10}),
		"HIGH": window([2]float64{60, 65}),
		"NONE": constant(20),
	}, 2)
	obs := nyc(t)

	p, err := e.NextPass(context.Background(), []tle.ElementSet{sat("HIGH", 1), sat("NONE", 2), sat("LOW", 3)}, obs)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "LOW", p.SatelliteName)
	assert.Equal(t, anchor.Add(5*time.Minute), p.Time)

	p, err = e.NextPass(context.Background(), []tle.ElementSet{sat("NONE", 2)}, obs)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestScanPassesSGP4(t *testing.T) {
	iss := tle.ElementSet{
		Name:  "ISS (ZARYA)",
		Line1: "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005",
		Line2: "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09",
	}
	broken := tle.ElementSet{Name: "BROKEN", Line1: "1 99999U", Line2: "2 99999"}
	// Passes a float check but not the integer parse inside go-satellite.
	fractionalID := tle.ElementSet{Name: "FRACTIONAL", Line1: iss.Line1[:2] + "2554." + iss.Line1[7:], Line2: iss.Line2}

	e := NewEngine(Config{Workers: 2}, testLogger)
	start := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	passes, err := e.ScanPassesAt(context.Background(), []tle.ElementSet{broken, fractionalID, iss}, nyc(t), 0, start)
	require.NoError(t, err)
	require.NotEmpty(t, passes)

	for i, p := range passes {
		assert.Equal(t, "ISS (ZARYA)", p.SatelliteName)
		assert.Equal(t, 25544, p.NORADID)
		assert.GreaterOrEqual(t, p.ElevationDeg, 0.0)
		assert.True(t, !p.Time.Before(start) && p.Time.Before(start.Add(Horizon)))
		assert.Zero(t, p.Time.Sub(start)%Step, "pass off the sample grid")
		if i > 0 {
			assert.GreaterOrEqual(t, p.Time.Sub(passes[i-1].Time), SkipAhead)
		}
	}
}
