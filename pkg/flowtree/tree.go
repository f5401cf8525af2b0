// Package flowtree holds the origin/destination flow trees of a directed road
// edge and the reachability walk used to trace a route through them.
package flowtree

import (
	"slices"

	"traffic_counts/pkg/edgeid"
)

// Direction selects one of the two sub-trees of a FlowTree.
type Direction uint8

const (
	// Origin is the upstream sub-tree: edges whose traffic flows into the root.
	Origin Direction = iota
	// Destination is the downstream sub-tree: edges receiving traffic from the root.
	Destination
)

func (d Direction) String() string {
	switch d {
	case Origin:
		return "origin"
	case Destination:
		return "destination"
	}
	return "unknown"
}

// TreeEdge is one directed edge's entry in a sub-tree.
type TreeEdge struct {
	Count uint64
	// Next lists the edges one hop further away from the root: upstream in
	// the origin tree, downstream in the destination tree. Entries of Next
	// without their own TreeEdge are leaves.
	Next []edgeid.DirectedEdgeID
}

// FlowTree is the result for one queried directed edge. It is not modified
// after construction; a new selection builds a new tree.
type FlowTree struct {
	Root         edgeid.DirectedEdgeID
	RootCount    uint64
	Origins      map[edgeid.DirectedEdgeID]TreeEdge
	Destinations map[edgeid.DirectedEdgeID]TreeEdge
}

// SubTree returns the mapping for dir.
func (t *FlowTree) SubTree(dir Direction) map[edgeid.DirectedEdgeID]TreeEdge {
	if dir == Destination {
		return t.Destinations
	}
	return t.Origins
}

// Contains reports whether id is a key of the dir sub-tree.
func (t *FlowTree) Contains(id edgeid.DirectedEdgeID, dir Direction) bool {
	_, ok := t.SubTree(dir)[id]
	return ok
}

// Keys returns the sub-tree keys in ascending order.
func (t *FlowTree) Keys(dir Direction) []edgeid.DirectedEdgeID {
	sub := t.SubTree(dir)
	keys := make([]edgeid.DirectedEdgeID, 0, len(sub))
	for k := range sub {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
