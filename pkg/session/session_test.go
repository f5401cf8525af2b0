package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic_counts/pkg/edgeid"
	"traffic_counts/pkg/flowtree"
)

var errTransport = errors.New("connection refused")

// fakeFetcher serves fixed records.
type fakeFetcher struct {
	records map[edgeid.DirectedEdgeID]*flowtree.RawTreeRecord
	err     error
}

func (f *fakeFetcher) FetchTree(ctx context.Context, id edgeid.DirectedEdgeID) (*flowtree.RawTreeRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, errTransport
	}
	return rec, nil
}

// gatedFetcher blocks each fetch until its gate is closed.
type gatedFetcher struct {
	started chan edgeid.DirectedEdgeID
	gates   map[edgeid.DirectedEdgeID]chan struct{}
	records map[edgeid.DirectedEdgeID]*flowtree.RawTreeRecord
}

func (f *gatedFetcher) FetchTree(ctx context.Context, id edgeid.DirectedEdgeID) (*flowtree.RawTreeRecord, error) {
	f.started <- id
	<-f.gates[id]
	return f.records[id], nil
}

// cancelAwareFetcher blocks on slow edges until the context is cancelled.
type cancelAwareFetcher struct {
	started chan edgeid.DirectedEdgeID
	slow    edgeid.DirectedEdgeID
	records map[edgeid.DirectedEdgeID]*flowtree.RawTreeRecord
}

func (f *cancelAwareFetcher) FetchTree(ctx context.Context, id edgeid.DirectedEdgeID) (*flowtree.RawTreeRecord, error) {
	f.started <- id
	if id == f.slow {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.records[id], nil
}

//	origins:      5 -> 7 -> 9
//	destinations: 30 -> 32, 30 -> 34 -> 36 (36 has no entry)
func sampleRecord() *flowtree.RawTreeRecord {
	return &flowtree.RawTreeRecord{
		ID:    20,
		Count: 42,
		Origins: map[string]flowtree.RawTreeEdge{
			"5": {Count: 3, Edges: []any{"7"}},
			"7": {Count: 2, Edges: []any{9}},
			"9": {Count: 1},
		},
		Destinations: map[string]flowtree.RawTreeEdge{
			"30": {Count: 4, Edges: []any{"32", "34"}},
			"32": {Count: 2},
			"34": {Count: 2, Edges: []any{"36"}},
		},
	}
}

func otherRecord() *flowtree.RawTreeRecord {
	return &flowtree.RawTreeRecord{
		ID:    100,
		Count: 7,
		Origins: map[string]flowtree.RawTreeEdge{
			"101": {Count: 7},
		},
	}
}

func keys(ks ...uint64) []edgeid.DirectedEdgeID {
	out := make([]edgeid.DirectedEdgeID, len(ks))
	for i, k := range ks {
		out[i] = edgeid.FromRawKey(k)
	}
	return out
}

func newLoaded(t *testing.T) (*Session, *Recorder) {
	t.Helper()
	rec := NewRecorder()
	s := New(&fakeFetcher{records: map[edgeid.DirectedEdgeID]*flowtree.RawTreeRecord{
		20:  sampleRecord(),
		100: otherRecord(),
	}}, rec)
	require.NoError(t, s.Select(context.Background(), 20))
	return s, rec
}

func TestSelectLoadsTree(t *testing.T) {
	s, rec := newLoaded(t)

	assert.Equal(t, TreeLoaded, s.State())
	require.NotNil(t, s.Tree())
	assert.Equal(t, edgeid.FromRawKey(20), s.Tree().Root)
	assert.Empty(t, s.Route())

	hl := s.Highlights()
	assert.Len(t, hl, 6)
	assert.Equal(t, HighlightState{Origin: true, OriginCount: 3, OriginID: 5}, hl[5])
	assert.Equal(t, HighlightState{Destination: true, DestinationCount: 4, DestinationID: 30}, hl[30])
	assert.Equal(t, hl, rec.States())
}

func TestHoverOriginTracesUpstream(t *testing.T) {
	s, rec := newLoaded(t)

	require.True(t, s.Hover(5))
	assert.Equal(t, RouteHighlighted, s.State())
	assert.Equal(t, keys(5, 7, 9), s.Route())

	hl := s.Highlights()
	assert.True(t, hl[5].Hovered)
	assert.True(t, hl[5].Route)
	assert.True(t, hl[9].Route)
	assert.False(t, hl[30].Route)
	assert.Equal(t, hl, rec.States())

	// Re-rooting replaces the route and moves the hover flag.
	require.True(t, s.Hover(7))
	assert.Equal(t, keys(7, 9), s.Route())
	hl = s.Highlights()
	assert.False(t, hl[5].Hovered)
	assert.False(t, hl[5].Route)
	assert.True(t, hl[7].Hovered)
	assert.Equal(t, hl, rec.States())
}

func TestHoverDestinationIncludesLeaves(t *testing.T) {
	s, rec := newLoaded(t)

	require.True(t, s.Hover(30))
	assert.Equal(t, keys(30, 32, 34, 36), s.Route())
	assert.Equal(t, HighlightState{Route: true}, rec.States()[36])

	// Leaving the destination tree drops the route-only leaf entirely.
	require.True(t, s.Hover(5))
	_, ok := rec.States()[36]
	assert.False(t, ok)
	assert.Equal(t, s.Highlights(), rec.States())
}

func TestHoverUnknownEdgeIsNoop(t *testing.T) {
	s, rec := newLoaded(t)
	require.True(t, s.Hover(34))

	before := s.Highlights()
	calls := rec.Calls()
	route := s.Route()

	assert.False(t, s.Hover(999))
	// 36 only carries route state; it is not part of either sub-tree.
	assert.False(t, s.Hover(36))

	assert.Equal(t, before, s.Highlights())
	assert.Equal(t, route, s.Route())
	assert.Equal(t, calls, rec.Calls())
	assert.Equal(t, RouteHighlighted, s.State())
}

func TestHoverIdleIsNoop(t *testing.T) {
	s := New(&fakeFetcher{}, nil)

	assert.False(t, s.Hover(5))
	assert.False(t, s.HoverIn(5, flowtree.Origin))
	assert.Equal(t, Idle, s.State())
}

func TestHoverInRespectsDirection(t *testing.T) {
	s, _ := newLoaded(t)

	assert.False(t, s.HoverIn(5, flowtree.Destination))
	assert.Equal(t, TreeLoaded, s.State())

	require.True(t, s.HoverIn(34, flowtree.Destination))
	assert.Equal(t, keys(34, 36), s.Route())
}

func TestHoverEdgeInBothSubTrees(t *testing.T) {
	rec := &flowtree.RawTreeRecord{
		ID:    1,
		Count: 2,
		Origins: map[string]flowtree.RawTreeEdge{
			"4": {Count: 1, Edges: []any{"6"}},
		},
		Destinations: map[string]flowtree.RawTreeEdge{
			"4": {Count: 1, Edges: []any{"8"}},
		},
	}
	s := New(&fakeFetcher{records: map[edgeid.DirectedEdgeID]*flowtree.RawTreeRecord{1: rec}}, nil)
	require.NoError(t, s.Select(context.Background(), 1))

	require.True(t, s.Hover(4))
	assert.Equal(t, keys(4, 6), s.Route())

	require.True(t, s.HoverIn(4, flowtree.Destination))
	assert.Equal(t, keys(4, 8), s.Route())
}

func TestSelectReplacesTree(t *testing.T) {
	s, rec := newLoaded(t)
	require.True(t, s.Hover(5))

	require.NoError(t, s.Select(context.Background(), 100))
	assert.Equal(t, TreeLoaded, s.State())
	assert.Empty(t, s.Route())
	assert.Equal(t, map[edgeid.DirectedEdgeID]HighlightState{
		101: {Origin: true, OriginCount: 7, OriginID: 101},
	}, rec.States())
}

func TestSelectTransportFailureKeepsTree(t *testing.T) {
	s, rec := newLoaded(t)
	require.True(t, s.Hover(5))
	before := rec.States()

	err := s.Select(context.Background(), 77)
	require.ErrorIs(t, err, errTransport)

	assert.Equal(t, edgeid.FromRawKey(20), s.Tree().Root)
	assert.Equal(t, RouteHighlighted, s.State())
	assert.Equal(t, before, rec.States())
}

func TestSelectMalformedKeepsTree(t *testing.T) {
	rec := NewRecorder()
	f := &fakeFetcher{records: map[edgeid.DirectedEdgeID]*flowtree.RawTreeRecord{
		20: sampleRecord(),
		21: {ID: 21, Count: "lots"},
	}}
	s := New(f, rec)
	require.NoError(t, s.Select(context.Background(), 20))
	before := rec.States()

	err := s.Select(context.Background(), 21)
	require.ErrorIs(t, err, flowtree.ErrMalformedTreeData)
	assert.Equal(t, edgeid.FromRawKey(20), s.Tree().Root)
	assert.Equal(t, before, rec.States())
}

func TestClear(t *testing.T) {
	s, rec := newLoaded(t)
	require.True(t, s.Hover(5))

	s.Clear()
	assert.Equal(t, Idle, s.State())
	assert.Nil(t, s.Tree())
	assert.Empty(t, s.Route())
	assert.Empty(t, s.Highlights())
	assert.Empty(t, rec.States())
	assert.False(t, s.Hover(5))
}

func TestStaleSelectIsDiscarded(t *testing.T) {
	f := &gatedFetcher{
		started: make(chan edgeid.DirectedEdgeID, 2),
		gates: map[edgeid.DirectedEdgeID]chan struct{}{
			20:  make(chan struct{}),
			100: make(chan struct{}),
		},
		records: map[edgeid.DirectedEdgeID]*flowtree.RawTreeRecord{
			20:  sampleRecord(),
			100: otherRecord(),
		},
	}
	s := New(f, NewRecorder())
	ctx := context.Background()

	errX := make(chan error, 1)
	go func() { errX <- s.Select(ctx, 20) }()
	require.Equal(t, edgeid.FromRawKey(20), <-f.started)

	errY := make(chan error, 1)
	go func() { errY <- s.Select(ctx, 100) }()
	require.Equal(t, edgeid.FromRawKey(100), <-f.started)

	// Y resolves first, then the older X.
	close(f.gates[100])
	require.NoError(t, <-errY)
	close(f.gates[20])
	require.NoError(t, <-errX)

	require.NotNil(t, s.Tree())
	assert.Equal(t, edgeid.FromRawKey(100), s.Tree().Root)
	assert.Equal(t, TreeLoaded, s.State())
}

func TestSupersededFetchIsCancelled(t *testing.T) {
	f := &cancelAwareFetcher{
		started: make(chan edgeid.DirectedEdgeID, 2),
		slow:    20,
		records: map[edgeid.DirectedEdgeID]*flowtree.RawTreeRecord{100: otherRecord()},
	}
	s := New(f, nil)

	errX := make(chan error, 1)
	go func() { errX <- s.Select(context.Background(), 20) }()
	<-f.started

	require.NoError(t, s.Select(context.Background(), 100))
	// The cancelled fetch is stale, so its error is not surfaced.
	require.NoError(t, <-errX)
	assert.Equal(t, edgeid.FromRawKey(100), s.Tree().Root)
}

func TestClearDiscardsPendingSelect(t *testing.T) {
	f := &gatedFetcher{
		started: make(chan edgeid.DirectedEdgeID, 1),
		gates:   map[edgeid.DirectedEdgeID]chan struct{}{20: make(chan struct{})},
		records: map[edgeid.DirectedEdgeID]*flowtree.RawTreeRecord{20: sampleRecord()},
	}
	s := New(f, nil)

	done := make(chan error, 1)
	go func() { done <- s.Select(context.Background(), 20) }()
	<-f.started

	s.Clear()
	close(f.gates[20])
	require.NoError(t, <-done)
	assert.Equal(t, Idle, s.State())
}

func TestFeatureStateAttributes(t *testing.T) {
	st := HighlightState{
		Hovered:          true,
		Origin:           true,
		OriginCount:      3,
		OriginID:         5,
		Destination:      true,
		DestinationCount: 4,
		DestinationID:    5,
		Route:            true,
	}
	assert.Equal(t, map[string]any{
		"hover":             true,
		"origin":            true,
		"origin_count":      uint64(3),
		"origin_id":         uint64(5),
		"destination":       true,
		"destination_count": uint64(4),
		"destination_id":    uint64(5),
		"route":             true,
	}, st.FeatureState())

	assert.Empty(t, HighlightState{}.FeatureState())
}

func TestRecorderFeaturesMergeBySegment(t *testing.T) {
	rec := NewRecorder()
	fwd := edgeid.FromSegment(3, true)
	rec.SetFeatureState(fwd, HighlightState{Origin: true, OriginCount: 2, OriginID: fwd})
	rec.SetFeatureState(fwd.Reverse(), HighlightState{Route: true})

	features := rec.Features()
	require.Len(t, features, 1)
	assert.Equal(t, map[string]any{
		"origin":       true,
		"origin_count": uint64(2),
		"origin_id":    fwd.RawKey(),
		"route":        true,
	}, features[3])
}
