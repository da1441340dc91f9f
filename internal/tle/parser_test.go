package tle

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"

	starlinkName  = "STARLINK-1007"
	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

func triplets(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestParseElementSets(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantNames []string
	}{
		{
			name: "empty input",
			raw:  "",
		},
		{
			name: "whitespace only",
			raw:  "  \n\t\n",
		},
		{
			name:      "single triplet",
			raw:       triplets(issName, issLine1, issLine2),
			wantNames: []string{issName},
		},
		{
			name:      "two triplets keep order",
			raw:       triplets(starlinkName, starlinkLine1, starlinkLine2, issName, issLine1, issLine2),
			wantNames: []string{starlinkName, issName},
		},
		{
			name:      "one trailing line dropped",
			raw:       triplets(issName, issLine1, issLine2, starlinkName),
			wantNames: []string{issName},
		},
		{
			name:      "two trailing lines dropped",
			raw:       triplets(issName, issLine1, issLine2, starlinkName, starlinkLine1),
			wantNames: []string{issName},
		},
		{
			name:      "crlf and padding trimmed",
			raw:       "  " + issName + "  \r\n" + issLine1 + "\r\n" + issLine2 + "\r\n",
			wantNames: []string{issName},
		},
		{
			name:      "blank lines between records ignored",
			raw:       triplets(issName, "", issLine1, issLine2, "", "", starlinkName, starlinkLine1, starlinkLine2),
			wantNames: []string{issName, starlinkName},
		},
		{
			name:      "garbage content is not validated",
			raw:       triplets("A", "B", "C"),
			wantNames: []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseElementSets(tt.raw)
			if len(got) != len(tt.wantNames) {
				t.Fatalf("got %d element sets, want %d", len(got), len(tt.wantNames))
			}
			for i, es := range got {
				if es.Name != tt.wantNames[i] {
					t.Errorf("set %d name = %q, want %q", i, es.Name, tt.wantNames[i])
				}
			}
		})
	}
}

func TestParseElementSetsTrimsLines(t *testing.T) {
	got := ParseElementSets("  " + issName + "\n  " + issLine1 + "  \n" + issLine2 + "\t\n")
	if len(got) != 1 {
		t.Fatalf("got %d sets, want 1", len(got))
	}
	if got[0].Line1 != issLine1 || got[0].Line2 != issLine2 {
		t.Errorf("lines not trimmed: %q / %q", got[0].Line1, got[0].Line2)
	}
}

func TestElementSetNORADID(t *testing.T) {
	tests := []struct {
		line1 string
		want  int
	}{
		{issLine1, 25544},
		{starlinkLine1, 44713},
		{"1 ABCDE", 0},
		{"1 2", 0},
	}
	for _, tt := range tests {
		if got := (ElementSet{Line1: tt.line1}).NORADID(); got != tt.want {
			t.Errorf("NORADID(%q) = %d, want %d", tt.line1, got, tt.want)
		}
	}
}

func TestElementSetEpoch(t *testing.T) {
	epoch, err := ElementSet{Line1: issLine1}.Epoch()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Day 100.5 of 2024 (leap year) is April 9, 12:00 UTC.
	want := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if !epoch.Equal(want) {
		t.Errorf("epoch = %v, want %v", epoch, want)
	}

	if _, err := (ElementSet{Line1: "1 25544U"}).Epoch(); err == nil {
		t.Error("expected error for short line1")
	}
}

func TestParseEpochCentury(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"57001.00000000", 1957},
		{"99001.00000000", 1999},
		{"00001.00000000", 2000},
		{"56001.00000000", 2056},
	}
	for _, tt := range tests {
		got, err := parseEpoch(tt.in)
		if err != nil {
			t.Fatalf("parseEpoch(%q): %v", tt.in, err)
		}
		if got.Year() != tt.want || got.YearDay() != 1 {
			t.Errorf("parseEpoch(%q) = %v, want Jan 1 %d", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "2x001.0", "24abc", "24000.5"} {
		if _, err := parseEpoch(bad); err == nil {
			t.Errorf("parseEpoch(%q) expected error", bad)
		}
	}
}

func TestParseValidates(t *testing.T) {
	raw := triplets(
		"JUNK HEADER",
		issName, issLine1, issLine2,
		"BAD EPOCH", "1 11111U 00000A   xx100.50000000  .00000000  00000-0  00000-0 0  9990", "2 11111",
		starlinkName, starlinkLine1, starlinkLine2,
	)

	sets, err := Parse(strings.NewReader(raw), testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("got %d sets, want 2", len(sets))
	}
	if sets[0].NORADID() != 25544 || sets[1].NORADID() != 44713 {
		t.Errorf("unexpected ids: %d, %d", sets[0].NORADID(), sets[1].NORADID())
	}
}

func TestNewDatasetEpochRangeAndFilter(t *testing.T) {
	older := ElementSet{Name: "OLD", Line1: "1 00001U 00000A   24090.00000000  .00000000  00000-0  00000-0 0  9990", Line2: "2 00001"}
	sets := []ElementSet{
		{Name: issName, Line1: issLine1, Line2: issLine2},
		older,
		{Name: "NO EPOCH", Line1: "1 00002U", Line2: "2 00002"},
	}

	ds := NewDataset("test", time.Now(), sets)
	wantMin, _ := older.Epoch()
	wantMax, _ := sets[0].Epoch()
	if !ds.EpochRange.Min.Equal(wantMin) || !ds.EpochRange.Max.Equal(wantMax) {
		t.Errorf("epoch range = [%v, %v], want [%v, %v]", ds.EpochRange.Min, ds.EpochRange.Max, wantMin, wantMax)
	}

	if got := ds.Filter(nil); len(got) != 3 {
		t.Errorf("Filter(nil) = %d sets, want 3", len(got))
	}
	got := ds.Filter([]int{25544, 99999})
	if len(got) != 1 || got[0].Name != issName {
		t.Errorf("Filter([25544]) = %v, want ISS only", got)
	}
}
