// Package transform converts SGP4 output into what a ground observer sees.
//
// SGP4 positions are in TEME. They are rotated into ECEF by GMST alone
// (TEME → PEF ≈ ECEF), ignoring polar motion and the equation of the
// equinoxes; the resulting error is tens of meters, far below what a
// 5-minute visibility scan can resolve. Look angles use the SEZ topocentric
// frame (Vallado, "Fundamentals of Astrodynamics and Applications", 4.4).
package transform

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch.
const j2000 = 2451545.0

// OmegaEarth is Earth's rotation rate in rad/s.
const OmegaEarth = 7.292115146706979e-5

// PositionTEME is a satellite state in the TEME frame (km, km/s).
type PositionTEME struct {
	X, Y, Z    float64
	VX, VY, VZ float64
}

// PositionECEF is a satellite state in the ECEF frame (meters, m/s).
type PositionECEF struct {
	X, Y, Z    float64
	VX, VY, VZ float64
}

// JulianDate converts a UTC instant to a Julian Date.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)
	dayFrac := (float64(t.Hour()) +
		float64(t.Minute())/60 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600) / 24

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + float64(t.Day()) + b - 1524.5 + dayFrac
}

// GMST returns Greenwich Mean Sidereal Time in radians (IAU-82, Vallado Eq 3-47).
func GMST(t time.Time) float64 {
	tUT1 := (JulianDate(t) - j2000) / 36525.0

	sec := 67310.54841 +
		(876600*3600+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	sec = math.Mod(sec, 86400)
	if sec < 0 {
		sec += 86400
	}
	return sec / 86400 * 2 * math.Pi
}

// TEMEToECEF rotates a TEME state into ECEF at t.
func TEMEToECEF(teme PositionTEME, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST rotates a TEME state by a precomputed GMST angle.
//
//	r_ECEF = R3(θ) r_TEME
//	v_ECEF = R3(θ) v_TEME − ω × r_ECEF
func TEMEToECEFWithGMST(teme PositionTEME, gmst float64) PositionECEF {
	cosG, sinG := math.Cos(gmst), math.Sin(gmst)

	x := teme.X*cosG + teme.Y*sinG
	y := -teme.X*sinG + teme.Y*cosG

	vx := teme.VX*cosG + teme.VY*sinG + OmegaEarth*y
	vy := -teme.VX*sinG + teme.VY*cosG - OmegaEarth*x

	return PositionECEF{
		X:  x * 1000,
		Y:  y * 1000,
		Z:  teme.Z * 1000,
		VX: vx * 1000,
		VY: vy * 1000,
		VZ: teme.VZ * 1000,
	}
}

// ValidateECEF reports whether pos is finite and between 6200 km and
// 50000 km from Earth's center.
func ValidateECEF(pos PositionECEF) bool {
	for _, v := range []float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	return mag >= 6200e3 && mag <= 50000e3
}
