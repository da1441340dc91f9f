package visibility

import (
	"time"

	"github.com/star/passwatch/internal/propagation"
	"github.com/star/passwatch/internal/tle"
	"github.com/star/passwatch/internal/transform"
)

// Source yields look angles for one satellite from one observer.
// An error means the satellite state at t is unusable; the sample is skipped.
type Source interface {
	LookAngles(t time.Time) (transform.LookAngles, error)
}

// SourceFactory builds the Source for an element set. An error excludes the
// satellite from the scan.
type SourceFactory func(es tle.ElementSet, obs transform.ObserverPosition) (Source, error)

// SGP4Sources is the production SourceFactory backed by SGP4 propagation.
func SGP4Sources(es tle.ElementSet, obs transform.ObserverPosition) (Source, error) {
	tr, err := propagation.NewTracker(es, obs)
	if err != nil {
		return nil, err
	}
	return tr, nil
}
