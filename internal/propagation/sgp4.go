package propagation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/passwatch/internal/tle"
	"github.com/star/passwatch/internal/transform"
)

// SGP4 library: github.com/joshuaferrara/go-satellite (pure Go, TEME output).
//
// Propagate() takes Satellite by value so SGP4 error codes are not visible
// to the caller; failures are detected from NaN/Inf output and unreasonable
// position magnitudes instead.

// SGP4Propagator wraps the go-satellite model for a single satellite.
type SGP4Propagator struct {
	sat     satellite.Satellite
	name    string
	noradID int
}

// NewSGP4Propagator initializes the SGP4 model for es.
//
// The element lines are checked field by field first: go-satellite calls
// log.Fatal on any field it cannot parse, which would take the process down.
func NewSGP4Propagator(es tle.ElementSet) (*SGP4Propagator, error) {
	noradID := es.NORADID()
	line1, line2 := strings.TrimSpace(es.Line1), strings.TrimSpace(es.Line2)
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for %q (NORAD %d): %w", es.Name, noradID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for %q (NORAD %d): code=%d %s", es.Name, noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, name: es.Name, noradID: noradID}, nil
}

// NORADID returns the catalog number of the propagated satellite.
func (p *SGP4Propagator) NORADID() int {
	return p.noradID
}

// Propagate computes the TEME state (km, km/s) at t. The library works in
// whole UTC seconds, so sub-second parts of t are dropped.
func (p *SGP4Propagator) Propagate(t time.Time) (transform.PositionTEME, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return transform.PositionTEME{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: output is NaN/Inf", p.noradID)
	}

	// A decayed or diverged orbit shows up as an implausible radius.
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return transform.PositionTEME{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: unreasonable position magnitude %.1f km", p.noradID, mag)
	}

	return transform.PositionTEME{
		X: pos.X, Y: pos.Y, Z: pos.Z,
		VX: vel.X, VY: vel.Y, VZ: vel.Z,
	}, nil
}

// tleField is a fixed-column numeric field as go-satellite reads it.
// integer fields go through strconv.ParseInt in the library, the rest
// through strconv.ParseFloat.
type tleField struct {
	name    string
	line    int
	integer bool
	decode  func(l string) string
}

var tleFields = []tleField{
	{"satnum", 1, true, func(l string) string { return strings.TrimSpace(l[2:7]) }},
	{"epoch year", 1, true, func(l string) string { return l[18:20] }},
	{"epoch day", 1, false, func(l string) string { return l[20:32] }},
	{"ndot", 1, false, func(l string) string { return strings.Replace(l[33:43], " ", "", 2) }},
	{"nddot", 1, false, func(l string) string { return strings.Replace(l[44:45]+"."+l[45:50]+"e"+l[50:52], " ", "", 2) }},
	{"bstar", 1, false, func(l string) string { return strings.Replace(l[53:54]+"."+l[54:59]+"e"+l[59:61], " ", "", 2) }},
	{"inclination", 2, false, func(l string) string { return strings.Replace(l[8:16], " ", "", 2) }},
	{"raan", 2, false, func(l string) string { return strings.Replace(l[17:25], " ", "", 2) }},
	{"eccentricity", 2, false, func(l string) string { return "." + l[26:33] }},
	{"arg of perigee", 2, false, func(l string) string { return strings.Replace(l[34:42], " ", "", 2) }},
	{"mean anomaly", 2, false, func(l string) string { return strings.Replace(l[43:51], " ", "", 2) }},
	{"mean motion", 2, false, func(l string) string { return strings.Replace(l[52:63], " ", "", 2) }},
}

func (f tleField) check(l string) error {
	v := f.decode(l)
	if f.integer {
		_, err := strconv.ParseInt(v, 10, 0)
		return err
	}
	_, err := strconv.ParseFloat(v, 64)
	return err
}

// validateTLELines rejects lines go-satellite would not be able to parse.
func validateTLELines(line1, line2 string) error {
	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}

	for _, f := range tleFields {
		l := line1
		if f.line == 2 {
			l = line2
		}
		if err := f.check(l); err != nil {
			return fmt.Errorf("line%d %s: %w", f.line, f.name, err)
		}
	}
	return nil
}
