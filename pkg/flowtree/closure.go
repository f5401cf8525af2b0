package flowtree

import (
	"slices"

	"traffic_counts/pkg/edgeid"
)

// EdgeSet is a set of directed edges.
type EdgeSet map[edgeid.DirectedEdgeID]struct{}

// Has reports whether id is in the set.
func (s EdgeSet) Has(id edgeid.DirectedEdgeID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending key order.
func (s EdgeSet) Sorted() []edgeid.DirectedEdgeID {
	out := make([]edgeid.DirectedEdgeID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// ReachableClosure returns every edge reachable from start by following Next
// links of the dir sub-tree, start included. The walk proceeds frontier by
// frontier and settles each edge once, so it terminates on cycles; edges
// without an entry in the sub-tree are settled as leaves.
func ReachableClosure(t *FlowTree, start edgeid.DirectedEdgeID, dir Direction) EdgeSet {
	settled := make(EdgeSet)
	var sub map[edgeid.DirectedEdgeID]TreeEdge
	if t != nil {
		sub = t.SubTree(dir)
	}

	queue := []edgeid.DirectedEdgeID{start}
	for len(queue) > 0 {
		var next []edgeid.DirectedEdgeID

		for _, id := range queue {
			if settled.Has(id) {
				continue
			}
			settled[id] = struct{}{}

			e, ok := sub[id]
			if !ok {
				continue
			}
			next = append(next, e.Next...)
		}

		queue = next
	}

	return settled
}
