// Package graph holds the bicycle segment network that counts are keyed on.
//
// A segment is a stretch of an OSM way between two junctions. Segment ids
// are dense indices 0..NumSegments-1; each segment has two directed edges
// (see package edgeid). Matched trips are stored alongside the network as
// sequences of directed edges.
package graph

import (
	"github.com/paulmach/orb"

	"traffic_counts/pkg/edgeid"
)

// Segment direction flags.
const (
	FlagForward  uint8 = 1 << 0
	FlagBackward uint8 = 1 << 1
)

// Network is the segment network in flattened (CSR-style) arrays.
type Network struct {
	NumSegments uint32
	SegWayID    []int64  // len: NumSegments; source OSM way
	SegFlags    []uint8  // len: NumSegments; FlagForward | FlagBackward
	SegLength   []uint32 // len: NumSegments; length in millimeters

	// Segment polylines, endpoints included.
	// GeoFirstOut[i]..GeoFirstOut[i+1] indexes into GeoLat/GeoLon/GeoNodeID.
	GeoFirstOut []uint32 // len: NumSegments + 1
	GeoLat      []float64
	GeoLon      []float64
	GeoNodeID   []int64 // OSM node of each vertex

	// Matched trips.
	// TripFirstOut[i]..TripFirstOut[i+1] indexes into TripEdges for trip i.
	TripFirstOut []uint32 // len: NumTrips + 1
	TripEdges    []uint64 // raw directed edge keys
}

// NumTrips returns the number of stored trips.
func (n *Network) NumTrips() int {
	if len(n.TripFirstOut) == 0 {
		return 0
	}
	return len(n.TripFirstOut) - 1
}

// Trip returns the directed edges of trip i in travel order.
func (n *Network) Trip(i int) []edgeid.DirectedEdgeID {
	start, end := n.TripFirstOut[i], n.TripFirstOut[i+1]
	out := make([]edgeid.DirectedEdgeID, 0, end-start)
	for _, k := range n.TripEdges[start:end] {
		out = append(out, edgeid.FromRawKey(k))
	}
	return out
}

// GeoRange returns the vertex index range of segment s.
func (n *Network) GeoRange(s uint32) (start, end uint32) {
	return n.GeoFirstOut[s], n.GeoFirstOut[s+1]
}

// Geometry returns the polyline of segment s in node order.
func (n *Network) Geometry(s uint32) orb.LineString {
	start, end := n.GeoRange(s)
	ls := make(orb.LineString, 0, end-start)
	for i := start; i < end; i++ {
		ls = append(ls, orb.Point{n.GeoLon[i], n.GeoLat[i]})
	}
	return ls
}

// Bound returns the bounding box of segment s.
func (n *Network) Bound(s uint32) orb.Bound {
	return n.Geometry(s).Bound()
}

// Allows reports whether the directed edge id may be travelled.
func (n *Network) Allows(id edgeid.DirectedEdgeID) bool {
	s := id.SegmentID()
	if s >= uint64(n.NumSegments) {
		return false
	}
	if id.IsForward() {
		return n.SegFlags[s]&FlagForward != 0
	}
	return n.SegFlags[s]&FlagBackward != 0
}

// HasSegment reports whether s is a segment of the network.
func (n *Network) HasSegment(s uint64) bool {
	return s < uint64(n.NumSegments)
}
