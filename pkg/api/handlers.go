package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"traffic_counts/pkg/counts"
	"traffic_counts/pkg/edgeid"
	"traffic_counts/pkg/engine"
	"traffic_counts/pkg/flowtree"
	"traffic_counts/pkg/spatial"
	"traffic_counts/pkg/tiles"
)

const (
	mvtContentType = "application/vnd.mapbox-vector-tile"
	cacheControl   = "public, max-age=300"
)

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	source engine.Source
	stats  StatsResponse
	// publicURL is the base written into TileJSON. Empty means derive it
	// from the request.
	publicURL string
}

// NewHandlers creates handlers over the given source.
func NewHandlers(source engine.Source, stats StatsResponse, publicURL string) *Handlers {
	return &Handlers{
		source:    source,
		stats:     stats,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// HandleTree handles GET /trees/{id}.
func (h *Handlers) HandleTree(w http.ResponseWriter, r *http.Request) {
	id, err := edgeid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_edge_id", "id")
		return
	}

	tree, err := h.source.Tree(r.Context(), id)
	if err != nil {
		if errors.Is(err, counts.ErrUnknownEdge) {
			writeError(w, http.StatusNotFound, "unknown_edge", "id")
			return
		}
		writeSourceError(w, err)
		return
	}

	body, err := json.Marshal(flowtree.Encode(tree))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	writeCached(w, r, "application/json", body)
}

// HandleTileJSON handles GET /tiles/mvt.json.
func (h *Handlers) HandleTileJSON(w http.ResponseWriter, r *http.Request) {
	base := h.publicURL
	if base == "" {
		base = requestBaseURL(r)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.source.TileJSON(base))
}

// HandleTile handles GET /tiles/{z}/{x}/{y}.mvt.
func (h *Handlers) HandleTile(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("file"), ".mvt")
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "")
		return
	}

	var zxy [3]uint32
	for i, s := range []string{r.PathValue("z"), r.PathValue("x"), name} {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_tile", "")
			return
		}
		zxy[i] = uint32(v)
	}

	data, err := h.source.Tile(r.Context(), zxy[0], zxy[1], zxy[2])
	if err != nil {
		if errors.Is(err, tiles.ErrInvalidTile) {
			writeError(w, http.StatusNotFound, "invalid_tile", "")
			return
		}
		writeSourceError(w, err)
		return
	}
	writeCached(w, r, mvtContentType, data)
}

// HandleNearest handles GET /api/v1/segments/nearest?lat=&lng=.
func (h *Handlers) HandleNearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "")
		return
	}
	if err := validateCoord(LatLngJSON{Lat: lat, Lng: lng}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "")
		return
	}

	snap, err := h.source.Nearest(r.Context(), lat, lng)
	if err != nil {
		if errors.Is(err, spatial.ErrPointTooFar) {
			writeError(w, http.StatusUnprocessableEntity, "point_too_far_from_segment", "")
			return
		}
		writeSourceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(NearestResponse{
		SegmentID:      snap.SegmentID,
		EdgeID:         snap.EdgeID.RawKey(),
		DistanceMeters: snap.DistanceMeters,
	})
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.stats)
}

func validateCoord(ll LatLngJSON) error {
	if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lng) || math.IsInf(ll.Lat, 0) || math.IsInf(ll.Lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if ll.Lat < -90 || ll.Lat > 90 || ll.Lng < -180 || ll.Lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

// writeCached writes body with a content ETag, answering 304 when the
// client already holds it.
func writeCached(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	etag := `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", cacheControl)

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(body)
}

func etagMatches(header, etag string) bool {
	for _, tag := range strings.Split(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || strings.TrimPrefix(tag, "W/") == etag {
			return true
		}
	}
	return false
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func writeSourceError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "")
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Field: field})
}
