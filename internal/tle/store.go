package tle

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/passwatch/internal/metrics"
)

// Store holds the dataset the service predicts against. Readers never block;
// a refresh swaps in a whole new Dataset.
type Store struct {
	current atomic.Pointer[Dataset]
	refresh sync.Mutex // one fetch in flight
}

// NewStore returns a Store with no dataset installed.
func NewStore() *Store {
	return &Store{}
}

// Current returns the installed dataset, or nil before the first load.
func (s *Store) Current() *Dataset {
	return s.current.Load()
}

// Ready reports whether a dataset has been installed.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// Install replaces the served dataset and publishes its size and age gauges.
func (s *Store) Install(ds *Dataset) {
	s.current.Store(ds)
	metrics.SetTLEDatasetCount(len(ds.Satellites))
	metrics.SetTLEDatasetAge(time.Since(ds.FetchedAt).Seconds())
}

// Lookup returns the installed dataset together with its element sets whose
// catalog number is in ids (all of them when ids is empty). Both come from
// the same snapshot, so a concurrent refresh cannot mix datasets.
func (s *Store) Lookup(ids []int) (*Dataset, []ElementSet, error) {
	ds := s.current.Load()
	if ds == nil {
		return nil, nil, ErrNoDataset
	}
	return ds, ds.Filter(ids), nil
}

// Age returns how old the installed dataset is at now. ok is false when
// nothing is installed.
func (s *Store) Age(now time.Time) (age time.Duration, ok bool) {
	ds := s.current.Load()
	if ds == nil {
		return 0, false
	}
	return now.Sub(ds.FetchedAt), true
}

// Stale reports whether the dataset is missing or older than maxAge at now.
func (s *Store) Stale(now time.Time, maxAge time.Duration) bool {
	age, ok := s.Age(now)
	return !ok || age > maxAge
}
