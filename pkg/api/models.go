package api

// LatLngJSON represents a lat/lng pair in JSON.
type LatLngJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NearestResponse is the JSON response for GET /api/v1/segments/nearest.
type NearestResponse struct {
	SegmentID      uint64  `json:"segment_id"`
	EdgeID         uint64  `json:"edge_id"`
	DistanceMeters float64 `json:"distance_meters"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	NumSegments   uint32 `json:"num_segments"`
	NumTrips      int    `json:"num_trips"`
	NumEdges      int    `json:"num_edges"`
	NumComponents int    `json:"num_components"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
