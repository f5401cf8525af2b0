package graph

import (
	"cmp"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"

	"traffic_counts/pkg/edgeid"
	osmparser "traffic_counts/pkg/osm"
)

// Build splits the parsed ways at junctions into a segment Network.
// A junction is any node shared by more than one way, or visited twice by
// the same way. Segment ids follow way id order, then node order.
func Build(result *osmparser.ParseResult) *Network {
	n := &Network{GeoFirstOut: []uint32{0}, TripFirstOut: []uint32{0}}
	if len(result.Ways) == 0 {
		return n
	}

	ways := slices.Clone(result.Ways)
	slices.SortFunc(ways, func(a, b osmparser.RawWay) int { return cmp.Compare(a.ID, b.ID) })

	// Step 1: count node usage across all ways.
	uses := make(map[osm.NodeID]int)
	for i := range ways {
		ways[i].NodeIDs = dedupConsecutive(ways[i].NodeIDs)
		for _, id := range ways[i].NodeIDs {
			uses[id]++
		}
	}

	// Step 2: split at junctions.
	for _, w := range ways {
		if len(w.NodeIDs) < 2 {
			continue
		}
		var flags uint8
		if w.Forward {
			flags |= FlagForward
		}
		if w.Backward {
			flags |= FlagBackward
		}

		start := 0
		last := len(w.NodeIDs) - 1
		for i := 1; i <= last; i++ {
			if i == last || uses[w.NodeIDs[i]] > 1 {
				n.addSegment(int64(w.ID), flags, w.NodeIDs[start:i+1], result)
				start = i
			}
		}
	}

	return n
}

func (n *Network) addSegment(wayID int64, flags uint8, nodes []osm.NodeID, result *osmparser.ParseResult) {
	var meters float64
	var prev orb.Point
	for i, id := range nodes {
		p := orb.Point{result.NodeLon[id], result.NodeLat[id]}
		if i > 0 {
			meters += geo.Distance(prev, p)
		}
		prev = p
		n.GeoLat = append(n.GeoLat, p.Lat())
		n.GeoLon = append(n.GeoLon, p.Lon())
		n.GeoNodeID = append(n.GeoNodeID, int64(id))
	}

	mm := math.Round(meters * 1000)
	if mm > math.MaxUint32 {
		mm = math.MaxUint32
	}

	n.SegWayID = append(n.SegWayID, wayID)
	n.SegFlags = append(n.SegFlags, flags)
	n.SegLength = append(n.SegLength, uint32(mm))
	n.GeoFirstOut = append(n.GeoFirstOut, uint32(len(n.GeoLat)))
	n.NumSegments++
}

func dedupConsecutive(ids []osm.NodeID) []osm.NodeID {
	return slices.Compact(slices.Clone(ids))
}

// AddTrip appends a matched trip. Empty trips are ignored.
func (n *Network) AddTrip(edges []edgeid.DirectedEdgeID) {
	if len(edges) == 0 {
		return
	}
	if len(n.TripFirstOut) == 0 {
		n.TripFirstOut = []uint32{0}
	}
	for _, e := range edges {
		n.TripEdges = append(n.TripEdges, e.RawKey())
	}
	n.TripFirstOut = append(n.TripFirstOut, uint32(len(n.TripEdges)))
}

type nodePair struct {
	from, to osm.NodeID
}

// Matcher maps node sequences onto directed edges of a Network.
type Matcher struct {
	pairs map[nodePair]edgeid.DirectedEdgeID
}

// NewMatcher indexes every travellable node pair of n. Where two segments
// share a node pair the lower segment id wins.
func NewMatcher(n *Network) *Matcher {
	m := &Matcher{pairs: make(map[nodePair]edgeid.DirectedEdgeID, len(n.GeoNodeID))}
	for s := uint32(0); s < n.NumSegments; s++ {
		start, end := n.GeoRange(s)
		for i := start + 1; i < end; i++ {
			a, b := osm.NodeID(n.GeoNodeID[i-1]), osm.NodeID(n.GeoNodeID[i])
			if n.SegFlags[s]&FlagForward != 0 {
				m.add(nodePair{a, b}, edgeid.FromSegment(uint64(s), true))
			}
			if n.SegFlags[s]&FlagBackward != 0 {
				m.add(nodePair{b, a}, edgeid.FromSegment(uint64(s), false))
			}
		}
	}
	return m
}

func (m *Matcher) add(p nodePair, id edgeid.DirectedEdgeID) {
	if _, ok := m.pairs[p]; !ok {
		m.pairs[p] = id
	}
}

// DirectedEdge returns the edge travelled when moving from node a to the
// adjacent node b.
func (m *Matcher) DirectedEdge(a, b osm.NodeID) (edgeid.DirectedEdgeID, bool) {
	id, ok := m.pairs[nodePair{a, b}]
	return id, ok
}

// Match converts a trip given as OSM nodes into runs of directed edges.
// Consecutive pairs on the same edge collapse into one entry; a pair with
// no travellable edge ends the current run.
func (m *Matcher) Match(nodes []osm.NodeID) [][]edgeid.DirectedEdgeID {
	var runs [][]edgeid.DirectedEdgeID
	var run []edgeid.DirectedEdgeID

	flush := func() {
		if len(run) > 0 {
			runs = append(runs, run)
			run = nil
		}
	}

	for i := 1; i < len(nodes); i++ {
		if nodes[i] == nodes[i-1] {
			continue
		}
		id, ok := m.pairs[nodePair{nodes[i-1], nodes[i]}]
		if !ok {
			flush()
			continue
		}
		if len(run) > 0 && run[len(run)-1] == id {
			continue
		}
		run = append(run, id)
	}
	flush()
	return runs
}
