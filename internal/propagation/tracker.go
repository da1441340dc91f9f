package propagation

import (
	"fmt"
	"time"

	"github.com/star/passwatch/internal/tle"
	"github.com/star/passwatch/internal/transform"
)

// Tracker reports where one satellite appears to a fixed observer.
type Tracker struct {
	prop *SGP4Propagator
	obs  transform.ObserverPosition
}

// NewTracker builds a Tracker for es as seen from obs.
func NewTracker(es tle.ElementSet, obs transform.ObserverPosition) (*Tracker, error) {
	prop, err := NewSGP4Propagator(es)
	if err != nil {
		return nil, err
	}
	return &Tracker{prop: prop, obs: obs}, nil
}

// LookAngles propagates to t, rotates TEME into ECEF and returns the
// topocentric look angles. A propagation failure is returned unchanged.
func (tr *Tracker) LookAngles(t time.Time) (transform.LookAngles, error) {
	teme, err := tr.prop.Propagate(t)
	if err != nil {
		return transform.LookAngles{}, err
	}
	ecef := transform.TEMEToECEF(teme, t)
	if !transform.ValidateECEF(ecef) {
		return transform.LookAngles{}, fmt.Errorf("NORAD %d: ECEF position out of range at %s", tr.prop.NORADID(), t.UTC().Format(time.RFC3339))
	}
	return tr.obs.LookAt(ecef), nil
}
