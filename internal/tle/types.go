package tle

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNoDataset is returned when an operation needs a loaded dataset and none is available.
var ErrNoDataset = errors.New("no TLE dataset loaded")

// ElementSet is one satellite's name line and its two element lines.
// Lines are stored trimmed but otherwise unvalidated.
type ElementSet struct {
	Name  string
	Line1 string
	Line2 string
}

// NORADID extracts the catalog number from line 1 (cols 3-7).
// Returns 0 when the line is too short or the field is not numeric.
func (e ElementSet) NORADID() int {
	if len(e.Line1) < 7 {
		return 0
	}
	id, err := strconv.Atoi(strings.TrimSpace(e.Line1[2:7]))
	if err != nil {
		return 0
	}
	return id
}

// Epoch extracts the element epoch from line 1 (cols 19-32).
func (e ElementSet) Epoch() (time.Time, error) {
	if len(e.Line1) < 32 {
		return time.Time{}, errors.New("line1 too short for epoch")
	}
	return parseEpoch(strings.TrimSpace(e.Line1[18:32]))
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset is a complete set of element sets from one source.
type Dataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []ElementSet
}

// NewDataset builds a Dataset and computes its epoch range.
// Entries whose epoch cannot be parsed do not contribute to the range.
func NewDataset(source string, fetchedAt time.Time, sets []ElementSet) *Dataset {
	ds := &Dataset{
		Source:     source,
		FetchedAt:  fetchedAt,
		Satellites: sets,
	}
	for _, s := range sets {
		epoch, err := s.Epoch()
		if err != nil {
			continue
		}
		if ds.EpochRange.Min.IsZero() || epoch.Before(ds.EpochRange.Min) {
			ds.EpochRange.Min = epoch
		}
		if epoch.After(ds.EpochRange.Max) {
			ds.EpochRange.Max = epoch
		}
	}
	return ds
}

// Filter returns the element sets whose catalog number is in ids, in dataset order.
// An empty ids returns every element set.
func (d *Dataset) Filter(ids []int) []ElementSet {
	if len(ids) == 0 {
		return d.Satellites
	}
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []ElementSet
	for _, s := range d.Satellites {
		if want[s.NORADID()] {
			out = append(out, s)
		}
	}
	return out
}
