// Package edgeid packs a road segment and a travel direction into a single
// integer key.
//
// The lowest bit of the key is the direction (0 = forward along the way's node
// order, 1 = reverse); the remaining bits hold the segment id. The raw key is
// the feature identifier of a directed edge, the segment id is the identifier
// of the undirected line feature both directions share.
package edgeid

import (
	"fmt"
	"strconv"
)

// DirectedEdgeID is one travel direction of a road segment.
type DirectedEdgeID uint64

// FromRawKey wraps a raw directed key as-is.
func FromRawKey(key uint64) DirectedEdgeID {
	return DirectedEdgeID(key)
}

// FromSegment builds the directed key for segmentID travelled forward or in reverse.
func FromSegment(segmentID uint64, forward bool) DirectedEdgeID {
	key := segmentID << 1
	if !forward {
		key |= 1
	}
	return DirectedEdgeID(key)
}

// RawKey returns the packed key.
func (id DirectedEdgeID) RawKey() uint64 { return uint64(id) }

// SegmentID returns the undirected segment the edge belongs to.
func (id DirectedEdgeID) SegmentID() uint64 { return uint64(id) >> 1 }

// IsForward reports whether the edge follows the segment's node order.
func (id DirectedEdgeID) IsForward() bool { return id&1 == 0 }

// Reverse returns the opposite direction of the same segment.
func (id DirectedEdgeID) Reverse() DirectedEdgeID { return id ^ 1 }

func (id DirectedEdgeID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Parse reads a base-10 raw key.
func Parse(s string) (DirectedEdgeID, error) {
	key, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid directed edge id %q: %w", s, err)
	}
	return DirectedEdgeID(key), nil
}
