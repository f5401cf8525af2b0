// Package counts aggregates matched trips into per-edge counts and builds the
// origin/destination flow tree of a directed edge.
package counts

import (
	"errors"
	"maps"
	"slices"

	"traffic_counts/pkg/edgeid"
	"traffic_counts/pkg/flowtree"
	"traffic_counts/pkg/graph"
)

// ErrUnknownEdge is returned when no trip travels the requested edge.
var ErrUnknownEdge = errors.New("no trips on edge")

// occurrence is the first position of an edge within one trip.
type occurrence struct {
	trip uint32
	pos  uint32
}

// Index is an inverted index from directed edge to the trips using it.
// It is read-only after construction and safe for concurrent use.
type Index struct {
	trips  [][]edgeid.DirectedEdgeID
	byEdge map[edgeid.DirectedEdgeID][]occurrence
}

// NewIndex indexes trips. Each trip is counted once per edge, at the edge's
// first occurrence.
func NewIndex(trips [][]edgeid.DirectedEdgeID) *Index {
	ix := &Index{
		trips:  trips,
		byEdge: make(map[edgeid.DirectedEdgeID][]occurrence),
	}
	for ti, trip := range trips {
		seen := make(map[edgeid.DirectedEdgeID]struct{}, len(trip))
		for pos, e := range trip {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			ix.byEdge[e] = append(ix.byEdge[e], occurrence{trip: uint32(ti), pos: uint32(pos)})
		}
	}
	return ix
}

// FromNetwork indexes the trips stored on n.
func FromNetwork(n *graph.Network) *Index {
	trips := make([][]edgeid.DirectedEdgeID, n.NumTrips())
	for i := range trips {
		trips[i] = n.Trip(i)
	}
	return NewIndex(trips)
}

// NumTrips returns the number of indexed trips.
func (ix *Index) NumTrips() int {
	return len(ix.trips)
}

// NumEdges returns the number of distinct directed edges travelled.
func (ix *Index) NumEdges() int {
	return len(ix.byEdge)
}

// Count returns the number of trips travelling id.
func (ix *Index) Count(id edgeid.DirectedEdgeID) uint64 {
	return uint64(len(ix.byEdge[id]))
}

// SegmentCounts returns per-segment trip counts in each direction. Edges of
// segments at or beyond numSegments are ignored.
func (ix *Index) SegmentCounts(numSegments uint32) (forward, backward []uint32) {
	forward = make([]uint32, numSegments)
	backward = make([]uint32, numSegments)
	for id, occs := range ix.byEdge {
		s := id.SegmentID()
		if s >= uint64(numSegments) {
			continue
		}
		if id.IsForward() {
			forward[s] = uint32(len(occs))
		} else {
			backward[s] = uint32(len(occs))
		}
	}
	return forward, backward
}

// TreeOptions bounds a tree build.
type TreeOptions struct {
	// MaxDepth limits how many edges are walked away from the root in each
	// direction. Zero means unlimited.
	MaxDepth int
	// MinCount drops sub-tree entries travelled by fewer trips. References
	// to dropped entries remain as leaves.
	MinCount uint64
}

type accumulator struct {
	count uint64
	next  map[edgeid.DirectedEdgeID]struct{}
}

type subTree map[edgeid.DirectedEdgeID]*accumulator

// link records that trip traffic passes from the edge nearer the root to
// the edge further away.
func (st subTree) link(from, to edgeid.DirectedEdgeID, hasFrom bool) {
	if !hasFrom {
		return
	}
	acc := st.entry(from)
	acc.next[to] = struct{}{}
}

func (st subTree) entry(id edgeid.DirectedEdgeID) *accumulator {
	acc, ok := st[id]
	if !ok {
		acc = &accumulator{next: make(map[edgeid.DirectedEdgeID]struct{})}
		st[id] = acc
	}
	return acc
}

// Tree builds the flow tree of root: for every trip through root the edges
// before it form the origin sub-tree and the edges after it the destination
// sub-tree. The root itself is never a sub-tree key.
func (ix *Index) Tree(root edgeid.DirectedEdgeID, opts TreeOptions) (*flowtree.FlowTree, error) {
	occs := ix.byEdge[root]
	if len(occs) == 0 {
		return nil, ErrUnknownEdge
	}

	origins := make(subTree)
	destinations := make(subTree)

	for _, occ := range occs {
		trip := ix.trips[occ.trip]
		p := int(occ.pos)

		upstream := make([]edgeid.DirectedEdgeID, 0, p)
		for i := p - 1; i >= 0; i-- {
			upstream = append(upstream, trip[i])
		}
		walk(origins, root, upstream, opts.MaxDepth)
		walk(destinations, root, trip[p+1:], opts.MaxDepth)
	}

	return &flowtree.FlowTree{
		Root:         root,
		RootCount:    uint64(len(occs)),
		Origins:      finish(origins, opts.MinCount),
		Destinations: finish(destinations, opts.MinCount),
	}, nil
}

// walk adds one trip's edges, ordered by distance from the root, to st. The
// walk ends at the root, at an edge this trip already visited or at
// maxDepth.
func walk(st subTree, root edgeid.DirectedEdgeID, edges []edgeid.DirectedEdgeID, maxDepth int) {
	seen := make(map[edgeid.DirectedEdgeID]struct{}, len(edges))
	var prev edgeid.DirectedEdgeID
	hasPrev := false

	for depth, e := range edges {
		if e == root || (maxDepth > 0 && depth >= maxDepth) {
			return
		}
		st.link(prev, e, hasPrev)
		if _, ok := seen[e]; ok {
			return
		}
		seen[e] = struct{}{}
		st.entry(e).count++
		prev, hasPrev = e, true
	}
}

func finish(st subTree, minCount uint64) map[edgeid.DirectedEdgeID]flowtree.TreeEdge {
	out := make(map[edgeid.DirectedEdgeID]flowtree.TreeEdge, len(st))
	for id, acc := range st {
		if acc.count < minCount {
			continue
		}
		out[id] = flowtree.TreeEdge{
			Count: acc.count,
			Next:  slices.Sorted(maps.Keys(acc.next)),
		}
	}
	return out
}
