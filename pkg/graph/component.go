package graph

// UnionFind is a disjoint-set over 0..n-1 with path halving and union by size.
type UnionFind struct {
	parent []uint32
	size   []uint32
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	uf := &UnionFind{parent: make([]uint32, n), size: make([]uint32, n)}
	for i := range n {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

// Find returns the representative of the set containing x.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx, ry := uf.Find(x), uf.Find(y)
	if rx == ry {
		return false
	}
	if uf.size[rx] < uf.size[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	return true
}

// segmentComponents unions segments that share an endpoint node and returns
// the union-find over segment ids.
func segmentComponents(n *Network) *UnionFind {
	uf := NewUnionFind(n.NumSegments)
	owner := make(map[int64]uint32, 2*n.NumSegments)
	for s := range n.NumSegments {
		start, end := n.GeoRange(s)
		for _, v := range []uint32{start, end - 1} {
			node := n.GeoNodeID[v]
			if o, ok := owner[node]; ok {
				uf.Union(o, s)
			} else {
				owner[node] = s
			}
		}
	}
	return uf
}

// CountComponents returns the number of weakly connected components of the
// segment network.
func CountComponents(n *Network) int {
	uf := segmentComponents(n)
	count := 0
	for s := range n.NumSegments {
		if uf.Find(s) == s {
			count++
		}
	}
	return count
}

// LargestComponent returns the segment ids of the largest weakly connected
// component, in ascending order.
func LargestComponent(n *Network) []uint32 {
	if n.NumSegments == 0 {
		return nil
	}
	uf := segmentComponents(n)

	bestRoot, bestSize := uint32(0), uint32(0)
	for s := range n.NumSegments {
		root := uf.Find(s)
		if uf.size[root] > bestSize {
			bestRoot, bestSize = root, uf.size[root]
		}
	}

	segs := make([]uint32, 0, bestSize)
	for s := range n.NumSegments {
		if uf.Find(s) == bestRoot {
			segs = append(segs, s)
		}
	}
	return segs
}

// FilterSegments returns a network holding only the given segments,
// renumbered densely in the order given. Trips are not carried over, so
// filter before matching.
func FilterSegments(n *Network, segs []uint32) *Network {
	out := &Network{GeoFirstOut: []uint32{0}, TripFirstOut: []uint32{0}}
	for _, s := range segs {
		start, end := n.GeoRange(s)
		out.SegWayID = append(out.SegWayID, n.SegWayID[s])
		out.SegFlags = append(out.SegFlags, n.SegFlags[s])
		out.SegLength = append(out.SegLength, n.SegLength[s])
		out.GeoLat = append(out.GeoLat, n.GeoLat[start:end]...)
		out.GeoLon = append(out.GeoLon, n.GeoLon[start:end]...)
		out.GeoNodeID = append(out.GeoNodeID, n.GeoNodeID[start:end]...)
		out.GeoFirstOut = append(out.GeoFirstOut, uint32(len(out.GeoLat)))
		out.NumSegments++
	}
	return out
}
