package flowtree

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"traffic_counts/pkg/edgeid"
)

// ErrMalformedTreeData is returned when a numeric field of a tree record
// cannot be read as a non-negative integer.
var ErrMalformedTreeData = errors.New("malformed tree data")

// RawTreeRecord is the shape a tree source delivers. Numeric values may be
// JSON numbers (float64 or json.Number), numeric strings or Go integers.
type RawTreeRecord struct {
	ID           any                    `json:"id"`
	Count        any                    `json:"count"`
	Origins      map[string]RawTreeEdge `json:"origins,omitempty"`
	Destinations map[string]RawTreeEdge `json:"destinations,omitempty"`
}

// RawTreeEdge is one entry of a raw origin or destination map.
type RawTreeEdge struct {
	Count any   `json:"count"`
	Edges []any `json:"edges,omitempty"`
}

// Decode converts a raw record into a FlowTree. It either returns the whole
// tree or an error wrapping ErrMalformedTreeData.
func Decode(rec *RawTreeRecord) (*FlowTree, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: empty record", ErrMalformedTreeData)
	}

	root, err := toUint(rec.ID, "id")
	if err != nil {
		return nil, err
	}
	count, err := toUint(rec.Count, "count")
	if err != nil {
		return nil, err
	}

	origins, err := decodeSubTree(rec.Origins, "origins")
	if err != nil {
		return nil, err
	}
	destinations, err := decodeSubTree(rec.Destinations, "destinations")
	if err != nil {
		return nil, err
	}

	return &FlowTree{
		Root:         edgeid.FromRawKey(root),
		RootCount:    count,
		Origins:      origins,
		Destinations: destinations,
	}, nil
}

func decodeSubTree(raw map[string]RawTreeEdge, field string) (map[edgeid.DirectedEdgeID]TreeEdge, error) {
	sub := make(map[edgeid.DirectedEdgeID]TreeEdge, len(raw))
	for k, e := range raw {
		path := field + "[" + k + "]"

		key, err := toUint(k, path)
		if err != nil {
			return nil, err
		}
		count, err := toUint(e.Count, path+".count")
		if err != nil {
			return nil, err
		}

		next := make([]edgeid.DirectedEdgeID, 0, len(e.Edges))
		for i, v := range e.Edges {
			n, err := toUint(v, fmt.Sprintf("%s.edges[%d]", path, i))
			if err != nil {
				return nil, err
			}
			next = append(next, edgeid.FromRawKey(n))
		}

		sub[edgeid.FromRawKey(key)] = TreeEdge{Count: count, Next: next}
	}
	return sub, nil
}

// toUint coerces an integer-like value. Integral floats ("3.0", 1e3) are
// accepted; fractions, negatives and non-numbers are not.
func toUint(v any, field string) (uint64, error) {
	switch n := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: %s: missing", ErrMalformedTreeData, field)
	case json.Number:
		return parseUint(n.String(), field)
	case string:
		return parseUint(n, field)
	case float64:
		return floatToUint(n, field)
	case float32:
		return floatToUint(float64(n), field)
	case int:
		return intToUint(int64(n), field)
	case int32:
		return intToUint(int64(n), field)
	case int64:
		return intToUint(n, field)
	case uint:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	}
	return 0, fmt.Errorf("%w: %s: unexpected type %T", ErrMalformedTreeData, field, v)
}

func parseUint(s, field string) (uint64, error) {
	s = strings.TrimSpace(s)
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q is not a number", ErrMalformedTreeData, field, s)
	}
	return floatToUint(f, field)
}

func floatToUint(f float64, field string) (uint64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f >= float64(math.MaxUint64) {
		return 0, fmt.Errorf("%w: %s: %v is not a non-negative integer", ErrMalformedTreeData, field, f)
	}
	return uint64(f), nil
}

func intToUint(i int64, field string) (uint64, error) {
	if i < 0 {
		return 0, fmt.Errorf("%w: %s: %d is negative", ErrMalformedTreeData, field, i)
	}
	return uint64(i), nil
}

// Encode renders a tree in the record shape Decode accepts. Counts are
// numbers; map keys and edge references are base-10 strings.
func Encode(t *FlowTree) *RawTreeRecord {
	return &RawTreeRecord{
		ID:           t.Root.RawKey(),
		Count:        t.RootCount,
		Origins:      encodeSubTree(t, Origin),
		Destinations: encodeSubTree(t, Destination),
	}
}

func encodeSubTree(t *FlowTree, dir Direction) map[string]RawTreeEdge {
	sub := t.SubTree(dir)
	if len(sub) == 0 {
		return nil
	}
	raw := make(map[string]RawTreeEdge, len(sub))
	for k, e := range sub {
		var edges []any
		for _, n := range e.Next {
			edges = append(edges, n.String())
		}
		raw[k.String()] = RawTreeEdge{Count: e.Count, Edges: edges}
	}
	return raw
}
