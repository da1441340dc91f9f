package tle

import (
	"errors"
	"testing"
	"time"
)

func TestStoreEmpty(t *testing.T) {
	s := NewStore()
	if s.Ready() {
		t.Error("empty store reports ready")
	}
	if _, _, err := s.Lookup(nil); !errors.Is(err, ErrNoDataset) {
		t.Errorf("Lookup err = %v, want ErrNoDataset", err)
	}
	if _, ok := s.Age(time.Now()); ok {
		t.Error("empty store reports an age")
	}
	if !s.Stale(time.Now(), time.Hour) {
		t.Error("empty store must be stale")
	}
}

func TestStoreLookup(t *testing.T) {
	s := NewStore()
	installed := NewDataset("test", time.Now(), ParseElementSets(issText+starlinkText))
	s.Install(installed)

	if !s.Ready() {
		t.Fatal("store not ready after Install")
	}

	tests := []struct {
		name string
		ids  []int
		want []int
	}{
		{"all", nil, []int{25544, 44713}},
		{"one", []int{44713}, []int{44713}},
		{"unknown", []int{99999}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, sets, err := s.Lookup(tt.ids)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if ds != installed {
				t.Error("Lookup returned a different dataset")
			}
			if len(sets) != len(tt.want) {
				t.Fatalf("got %d sets, want %d", len(sets), len(tt.want))
			}
			for i, id := range tt.want {
				if got := sets[i].NORADID(); got != id {
					t.Errorf("sets[%d] = %d, want %d", i, got, id)
				}
			}
		})
	}
}

func TestStoreStale(t *testing.T) {
	fetched := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	s := NewStore()
	s.Install(&Dataset{FetchedAt: fetched})

	age, ok := s.Age(fetched.Add(90 * time.Second))
	if !ok || age != 90*time.Second {
		t.Errorf("Age = %v, %v; want 1m30s, true", age, ok)
	}
	if s.Stale(fetched.Add(time.Hour), time.Hour) {
		t.Error("dataset exactly maxAge old must not be stale")
	}
	if !s.Stale(fetched.Add(time.Hour+time.Second), time.Hour) {
		t.Error("dataset older than maxAge must be stale")
	}
}
