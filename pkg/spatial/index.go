// Package spatial indexes segment bounding boxes for tile queries and
// nearest-segment lookup.
package spatial

import (
	"errors"
	"math"
	"slices"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/tidwall/rtree"

	"traffic_counts/pkg/geo"
	"traffic_counts/pkg/graph"
)

// DefaultMaxSnapMeters is the search radius used when none is given.
const DefaultMaxSnapMeters = 500.0

// metersPerDegree is the length of one degree of latitude.
const metersPerDegree = 111_320.0

// ErrPointTooFar is returned when no segment lies within the search radius.
var ErrPointTooFar = errors.New("point too far from any segment")

// Snap is a point snapped to a segment.
type Snap struct {
	Segment uint32
	Ratio   float64 // 0.0 = first vertex, 1.0 = last vertex
	Dist    float64 // meters from the query point
}

// Index is an R-tree over segment bounding boxes.
type Index struct {
	net *graph.Network
	tr  rtree.RTreeG[uint32]
}

// NewIndex indexes every segment of n.
func NewIndex(n *graph.Network) *Index {
	ix := &Index{net: n}
	for s := range n.NumSegments {
		b := n.Bound(s)
		ix.tr.Insert([2]float64(b.Min), [2]float64(b.Max), s)
	}
	return ix
}

// Len returns the number of indexed segments.
func (ix *Index) Len() int {
	return ix.tr.Len()
}

// Search returns the segments whose bounding box intersects b, in ascending
// order.
func (ix *Index) Search(b orb.Bound) []uint32 {
	var segs []uint32
	ix.tr.Search([2]float64(b.Min), [2]float64(b.Max), func(_, _ [2]float64, s uint32) bool {
		segs = append(segs, s)
		return true
	})
	slices.Sort(segs)
	return segs
}

// Nearest returns the segment closest to lat/lng within maxMeters. A
// non-positive maxMeters uses DefaultMaxSnapMeters. Ties go to the lower
// segment id.
func (ix *Index) Nearest(lat, lng, maxMeters float64) (Snap, error) {
	if maxMeters <= 0 {
		maxMeters = DefaultMaxSnapMeters
	}
	p := orb.Point{lng, lat}

	dLat := maxMeters / metersPerDegree
	dLng := dLat / math.Max(math.Cos(lat*math.Pi/180), 0.01)
	query := orb.Bound{
		Min: orb.Point{lng - dLng, lat - dLat},
		Max: orb.Point{lng + dLng, lat + dLat},
	}

	best := Snap{Dist: math.Inf(1)}
	for _, s := range ix.Search(query) {
		start, end := ix.net.GeoRange(s)
		length := float64(ix.net.SegLength[s])
		var walked float64
		for i := start + 1; i < end; i++ {
			a := orb.Point{ix.net.GeoLon[i-1], ix.net.GeoLat[i-1]}
			b := orb.Point{ix.net.GeoLon[i], ix.net.GeoLat[i]}
			d, t := geo.PointToSegmentDist(p, a, b)
			leg := legMillimeters(a, b)
			if d < best.Dist {
				ratio := 0.0
				if length > 0 {
					ratio = math.Min(1, (walked+t*leg)/length)
				}
				best = Snap{Segment: s, Ratio: ratio, Dist: d}
			}
			walked += leg
		}
	}

	if best.Dist > maxMeters {
		return Snap{}, ErrPointTooFar
	}
	return best, nil
}

func legMillimeters(a, b orb.Point) float64 {
	return orbgeo.Distance(a, b) * 1000
}
