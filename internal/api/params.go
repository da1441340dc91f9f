package api

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/star/passwatch/internal/tle"
	"github.com/star/passwatch/internal/transform"
	"github.com/star/passwatch/internal/visibility"
)

// scanQuery is the parsed observer, threshold and satellite filter of a pass request.
type scanQuery struct {
	obs   transform.ObserverPosition
	minEl float64
	ids   []int // sorted, unique; empty means all
}

func parseScanQuery(q url.Values) (scanQuery, error) {
	lat, err := requiredFloat(q, "lat")
	if err != nil {
		return scanQuery{}, err
	}
	lon, err := requiredFloat(q, "lon")
	if err != nil {
		return scanQuery{}, err
	}
	alt, err := optionalFloat(q, "alt_km", 0)
	if err != nil {
		return scanQuery{}, err
	}
	obs, err := transform.NewObserver(lat, lon, alt)
	if err != nil {
		return scanQuery{}, err
	}

	minEl, err := optionalFloat(q, "min_elevation", visibility.DefaultMinElevation)
	if err != nil {
		return scanQuery{}, err
	}

	ids, err := parseNORADIDs(q.Get("norad_id"))
	if err != nil {
		return scanQuery{}, err
	}

	return scanQuery{obs: obs, minEl: minEl, ids: ids}, nil
}

func requiredFloat(q url.Values, name string) (float64, error) {
	if q.Get(name) == "" {
		return 0, fmt.Errorf("missing %s parameter", name)
	}
	return optionalFloat(q, name, 0)
}

func optionalFloat(q url.Values, name string, def float64) (float64, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter %q", name, v)
	}
	return f, nil
}

// parseNORADIDs parses a comma-separated catalog number list.
func parseNORADIDs(v string) ([]int, error) {
	if v == "" {
		return nil, nil
	}
	var ids []int
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.Atoi(s)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid norad_id %q", s)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("norad_id must list at least one catalog number")
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// cacheKey identifies a result by everything that determines it. Requests
// within the same wall-clock minute against the same dataset share an entry,
// so a cached response carries the anchor of the scan that produced it and
// may lag the request time by up to 59 s.
func (q scanQuery) cacheKey(kind string, ds *tle.Dataset, now time.Time) string {
	return fmt.Sprintf("%s|%d|%.6f|%.6f|%.4f|%g|%v|%d",
		kind,
		ds.FetchedAt.UnixNano(),
		q.obs.LatDeg, q.obs.LonDeg, q.obs.HeightKm,
		q.minEl,
		q.ids,
		now.Truncate(time.Minute).Unix(),
	)
}
