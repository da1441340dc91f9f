// Package visibility predicts when satellites rise above an elevation
// threshold for a ground observer.
//
// The scan walks a fixed 24 h horizon in 5 minute steps. When a sample
// crosses the threshold going up, a Pass is recorded at that sample and the
// scan jumps 90 minutes ahead (roughly one low-Earth orbit) so the same pass
// is not reported again. A pass shorter than one step can fall between
// samples, and a second pass within the jump is not seen; both are part of
// the coarse-scan contract.
package visibility

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// Horizon is how far past the anchor instant passes are searched.
	Horizon = 24 * time.Hour
	// Step is the interval between samples.
	Step = 5 * time.Minute
	// SkipAhead is how far the scan jumps after a rising edge.
	SkipAhead = 90 * time.Minute
	// DefaultMinElevation is the threshold used by NextPass, in degrees.
	DefaultMinElevation = 25.0
)

// ErrInvalidThreshold is returned for a non-finite or out-of-range minimum elevation.
var ErrInvalidThreshold = errors.New("invalid minimum elevation")

// Pass is the first sample at which a satellite was seen above the threshold.
type Pass struct {
	SatelliteName string    `json:"satellite_name"`
	NORADID       int       `json:"norad_id"`
	Time          time.Time `json:"time"`
	ElevationDeg  float64   `json:"elevation_deg"`
	AzimuthDeg    float64   `json:"azimuth_deg"`
	RangeKm       float64   `json:"range_km"`
}

func checkThreshold(minEl float64) error {
	if math.IsNaN(minEl) || math.IsInf(minEl, 0) || minEl < -90 || minEl > 90 {
		return fmt.Errorf("%w: %v not in [-90, 90]", ErrInvalidThreshold, minEl)
	}
	return nil
}
