package transform

import (
	"errors"
	"fmt"
	"math"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// ErrInvalidObserver is returned for non-finite or out-of-range observer coordinates.
var ErrInvalidObserver = errors.New("invalid observer")

// ObserverPosition is a ground observer in geodetic and ECEF form.
// ECEF coordinates are computed once and reused for every sample.
type ObserverPosition struct {
	LatDeg, LonDeg, HeightKm float64
	latRad, lonRad           float64
	ecefX, ecefY, ecefZ      float64 // meters
}

// LookAngles is where an observer must point to see a satellite.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
}

// NewObserver validates geodetic coordinates and precomputes the observer's ECEF position.
// Latitude must be within [-90, 90], longitude within [-180, 180] and height
// (km above the WGS-84 ellipsoid) non-negative.
func NewObserver(latDeg, lonDeg, heightKm float64) (ObserverPosition, error) {
	switch {
	case !finite(latDeg) || latDeg < -90 || latDeg > 90:
		return ObserverPosition{}, fmt.Errorf("%w: latitude %v not in [-90, 90]", ErrInvalidObserver, latDeg)
	case !finite(lonDeg) || lonDeg < -180 || lonDeg > 180:
		return ObserverPosition{}, fmt.Errorf("%w: longitude %v not in [-180, 180]", ErrInvalidObserver, lonDeg)
	case !finite(heightKm) || heightKm < 0:
		return ObserverPosition{}, fmt.Errorf("%w: height %v km must be non-negative", ErrInvalidObserver, heightKm)
	}
	obs := observerAt(latDeg, lonDeg, heightKm*1000)
	obs.HeightKm = heightKm
	return obs, nil
}

// observerAt builds an ObserverPosition without validation; altM may be any
// height in meters, which tests use to place synthetic satellites.
func observerAt(latDeg, lonDeg, altM float64) ObserverPosition {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)

	// Prime vertical radius of curvature.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ObserverPosition{
		LatDeg:   latDeg,
		LonDeg:   lonDeg,
		HeightKm: altM / 1000,
		latRad:   lat,
		lonRad:   lon,
		ecefX:    (n + altM) * cosLat * math.Cos(lon),
		ecefY:    (n + altM) * cosLat * math.Sin(lon),
		ecefZ:    (n*(1-wgs84E2) + altM) * sinLat,
	}
}

// Valid reports whether o was built from in-range coordinates. The zero
// value is not valid.
func (o ObserverPosition) Valid() bool {
	return finite(o.LatDeg) && o.LatDeg >= -90 && o.LatDeg <= 90 &&
		finite(o.LonDeg) && o.LonDeg >= -180 && o.LonDeg <= 180 &&
		finite(o.HeightKm) && o.HeightKm >= 0 &&
		(o.ecefX != 0 || o.ecefY != 0 || o.ecefZ != 0)
}

// ECEF returns the observer's precomputed ECEF position in meters.
func (o ObserverPosition) ECEF() (x, y, z float64) {
	return o.ecefX, o.ecefY, o.ecefZ
}

// LookAt computes azimuth, elevation and range from the observer to an ECEF position.
func (o ObserverPosition) LookAt(sat PositionECEF) LookAngles {
	return ECEFToLookAngles(o, sat.X, sat.Y, sat.Z)
}

// ECEFToLookAngles rotates the observer→satellite vector (ECEF meters) into
// South-East-Zenith and derives look angles.
func ECEFToLookAngles(obs ObserverPosition, satX, satY, satZ float64) LookAngles {
	rx := satX - obs.ecefX
	ry := satY - obs.ecefY
	rz := satZ - obs.ecefZ

	sinLat, cosLat := math.Sin(obs.latRad), math.Cos(obs.latRad)
	sinLon, cosLon := math.Sin(obs.lonRad), math.Cos(obs.lonRad)

	south := sinLat*cosLon*rx + sinLat*sinLon*ry - cosLat*rz
	east := -sinLon*rx + cosLon*ry
	zenith := cosLat*cosLon*rx + cosLat*sinLon*ry + sinLat*rz

	rng := math.Sqrt(south*south + east*east + zenith*zenith)

	// North is -South in SEZ.
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * 180 / math.Pi,
		ElevationDeg: math.Asin(zenith/rng) * 180 / math.Pi,
		RangeKm:      rng / 1000,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
