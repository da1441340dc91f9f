package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/passwatch/internal/httputil"
	"github.com/star/passwatch/internal/tle"
	"github.com/star/passwatch/internal/transform"
	"github.com/star/passwatch/internal/visibility"
)

// maxSubmitBytes bounds the element-set text accepted by POST /api/v1/passes.
const maxSubmitBytes = 1 << 20

type epochRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

type metadataResponse struct {
	Source     string     `json:"source"`
	FetchedAt  time.Time  `json:"fetched_at"`
	AgeSeconds float64    `json:"age_seconds"`
	Count      int        `json:"count"`
	EpochRange epochRange `json:"epoch_range"`
}

func newMetadataResponse(ds *tle.Dataset) metadataResponse {
	return metadataResponse{
		Source:     ds.Source,
		FetchedAt:  ds.FetchedAt,
		AgeSeconds: time.Since(ds.FetchedAt).Seconds(),
		Count:      len(ds.Satellites),
		EpochRange: epochRange{Min: ds.EpochRange.Min, Max: ds.EpochRange.Max},
	}
}

func metadataHandler(store *tle.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds := store.Current()
		if ds == nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, tle.ErrNoDataset.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newMetadataResponse(ds))
	}
}

func fetchHandler(logger *slog.Logger, loader *tle.Loader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds, err := loader.Refresh(r.Context())
		switch {
		case errors.Is(err, tle.ErrFetchDisabled):
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			logger.Warn("manual TLE refresh failed", "component", "api", "error", err)
			httputil.WriteError(w, http.StatusBadGateway, "TLE refresh failed")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newMetadataResponse(ds))
	}
}

type passesResponse struct {
	Anchor       time.Time         `json:"anchor"`
	MinElevation float64           `json:"min_elevation"`
	Count        int               `json:"count"`
	Passes       []visibility.Pass `json:"passes"`
}

// passAPI serves the pass prediction endpoints.
type passAPI struct {
	store      *tle.Store
	engine     *visibility.Engine
	scans      *resultCache[passesResponse]
	nexts      *resultCache[visibility.NextPassResult]
	limiter    *httputil.Limiter
	timeout    time.Duration
	trustProxy bool
	logger     *slog.Logger
}

// handlePasses scans the stored dataset, optionally filtered by norad_id.
// A cache hit returns the earlier scan unchanged, including its anchor,
// which is at most a minute older than the request.
func (p *passAPI) handlePasses(w http.ResponseWriter, r *http.Request) {
	q, err := parseScanQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	p.serveStoredScan(w, r, q, false)
}

// handleSatellitePasses scans one satellite of the stored dataset.
func (p *passAPI) handleSatellitePasses(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id < 1 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid norad_id in path")
		return
	}
	q, err := parseScanQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	q.ids = []int{id}
	p.serveStoredScan(w, r, q, true)
}

func (p *passAPI) serveStoredScan(w http.ResponseWriter, r *http.Request, q scanQuery, requireMatch bool) {
	ds, sets, err := p.store.Lookup(q.ids)
	if err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if requireMatch && len(sets) == 0 {
		httputil.WriteError(w, http.StatusNotFound, "satellite not in dataset")
		return
	}

	now := time.Now()
	key := q.cacheKey("scan", ds, now)
	if resp, ok := p.scans.get(key); ok {
		httputil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	resp, ok := p.scan(w, r, sets, q, now)
	if !ok {
		return
	}
	p.scans.add(key, resp)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleNextPass applies the 25°/15°/5° fallback to the stored dataset.
// min_elevation is ignored. Cached results behave as in handlePasses.
func (p *passAPI) handleNextPass(w http.ResponseWriter, r *http.Request) {
	q, err := parseScanQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	q.minEl = visibility.DefaultMinElevation

	ds, sets, err := p.store.Lookup(q.ids)
	if err != nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	now := time.Now()
	key := q.cacheKey("next", ds, now)
	if res, ok := p.nexts.get(key); ok {
		httputil.WriteJSON(w, http.StatusOK, res)
		return
	}

	res, ok := p.next(w, r, sets, q, now)
	if !ok {
		return
	}
	p.nexts.add(key, res)
	httputil.WriteJSON(w, http.StatusOK, res)
}

// handleSubmit scans element sets posted as raw text. With next=true the
// fallback policy is applied instead of a single-threshold scan.
func (p *passAPI) handleSubmit(w http.ResponseWriter, r *http.Request) {
	q, err := parseScanQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	wantNext, _ := strconv.ParseBool(r.URL.Query().Get("next"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSubmitBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	now := time.Now()
	ds := tle.NewDataset("request", now, tle.ParseElementSets(string(body)))
	if len(ds.Satellites) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "no element sets in request body")
		return
	}
	sets := ds.Filter(q.ids)

	if wantNext {
		if res, ok := p.next(w, r, sets, q, now); ok {
			httputil.WriteJSON(w, http.StatusOK, res)
		}
		return
	}
	if resp, ok := p.scan(w, r, sets, q, now); ok {
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

// scan runs a limited engine scan. On failure it writes the error response
// and returns false.
func (p *passAPI) scan(w http.ResponseWriter, r *http.Request, sets []tle.ElementSet, q scanQuery, now time.Time) (passesResponse, bool) {
	release, ok := p.acquire(w, r)
	if !ok {
		return passesResponse{}, false
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	passes, err := p.engine.ScanPassesAt(ctx, sets, q.obs, q.minEl, now)
	if err != nil {
		p.writeScanError(w, err)
		return passesResponse{}, false
	}
	return passesResponse{Anchor: now.UTC(), MinElevation: q.minEl, Count: len(passes), Passes: passes}, true
}

func (p *passAPI) next(w http.ResponseWriter, r *http.Request, sets []tle.ElementSet, q scanQuery, now time.Time) (visibility.NextPassResult, bool) {
	release, ok := p.acquire(w, r)
	if !ok {
		return visibility.NextPassResult{}, false
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	res, err := p.engine.FindNextPassAt(ctx, sets, q.obs, now)
	if err != nil {
		p.writeScanError(w, err)
		return visibility.NextPassResult{}, false
	}
	return res, true
}

func (p *passAPI) acquire(w http.ResponseWriter, r *http.Request) (func(), bool) {
	ip := httputil.ClientIP(r, p.trustProxy)
	if !p.limiter.Acquire(ip) {
		p.logger.Warn("scan limit exceeded",
			"component", "api",
			"client_ip", ip,
			"current_count", p.limiter.Count(ip),
		)
		w.Header().Set("Retry-After", "5")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent scans")
		return nil, false
	}
	return func() { p.limiter.Release(ip) }, true
}

func (p *passAPI) writeScanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, visibility.ErrInvalidThreshold), errors.Is(err, transform.ErrInvalidObserver):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		p.logger.Warn("scan timed out", "component", "api", "timeout", p.timeout.String())
		httputil.WriteError(w, http.StatusServiceUnavailable, "scan timed out")
	case errors.Is(err, context.Canceled):
		p.logger.Info("scan abandoned", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusServiceUnavailable, "scan cancelled")
	default:
		p.logger.Error("scan failed", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "scan failed")
	}
}
