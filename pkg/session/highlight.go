package session

import (
	"maps"
	"slices"
	"sync"

	"traffic_counts/pkg/edgeid"
)

// HighlightState is the per-edge projection handed to the rendering side.
type HighlightState struct {
	Hovered bool

	Origin      bool
	OriginCount uint64
	OriginID    edgeid.DirectedEdgeID

	Destination      bool
	DestinationCount uint64
	DestinationID    edgeid.DirectedEdgeID

	Route bool
}

// IsZero reports whether no attribute is set.
func (h HighlightState) IsZero() bool {
	return h == HighlightState{}
}

// FeatureState returns the set attributes under the names the map layers
// style on.
func (h HighlightState) FeatureState() map[string]any {
	fs := make(map[string]any)
	if h.Hovered {
		fs["hover"] = true
	}
	if h.Origin {
		fs["origin"] = true
		fs["origin_count"] = h.OriginCount
		fs["origin_id"] = h.OriginID.RawKey()
	}
	if h.Destination {
		fs["destination"] = true
		fs["destination_count"] = h.DestinationCount
		fs["destination_id"] = h.DestinationID.RawKey()
	}
	if h.Route {
		fs["route"] = true
	}
	return fs
}

// Sink receives highlight updates. Calls are serialized by the Session.
type Sink interface {
	SetFeatureState(id edgeid.DirectedEdgeID, st HighlightState)
	RemoveFeatureState(id edgeid.DirectedEdgeID)
	ResetFeatureState()
}

type nopSink struct{}

func (nopSink) SetFeatureState(edgeid.DirectedEdgeID, HighlightState) {}
func (nopSink) RemoveFeatureState(edgeid.DirectedEdgeID)              {}
func (nopSink) ResetFeatureState()                                    {}

// Recorder is an in-memory Sink.
type Recorder struct {
	mu     sync.Mutex
	states map[edgeid.DirectedEdgeID]HighlightState
	calls  int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{states: make(map[edgeid.DirectedEdgeID]HighlightState)}
}

func (r *Recorder) SetFeatureState(id edgeid.DirectedEdgeID, st HighlightState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[id] = st
	r.calls++
}

func (r *Recorder) RemoveFeatureState(id edgeid.DirectedEdgeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, id)
	r.calls++
}

func (r *Recorder) ResetFeatureState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.states)
	r.calls++
}

// States returns a copy of the recorded per-edge state.
func (r *Recorder) States() map[edgeid.DirectedEdgeID]HighlightState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.states)
}

// Calls returns the number of updates received.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Features projects the recorded state onto segment-keyed features, merging
// the attributes of both directions of a segment in ascending key order, the
// way feature state accumulates on a segment-keyed vector tile source.
func (r *Recorder) Features() map[uint64]map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := slices.Sorted(maps.Keys(r.states))
	features := make(map[uint64]map[string]any)
	for _, id := range keys {
		fs, ok := features[id.SegmentID()]
		if !ok {
			fs = make(map[string]any)
			features[id.SegmentID()] = fs
		}
		maps.Copy(fs, r.states[id].FeatureState())
	}
	return features
}
