// Package session tracks the selected flow tree and the hovered route for one
// map view.
//
// A Session moves between three states: Idle (no tree), TreeLoaded (a tree is
// current) and RouteHighlighted (a hovered edge's reachable closure is drawn
// on top of the tree). Every change is pushed to a Sink as per-edge
// HighlightState.
package session

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"traffic_counts/pkg/edgeid"
	"traffic_counts/pkg/flowtree"
)

// State is the selection state of a Session.
type State uint8

const (
	Idle State = iota
	TreeLoaded
	RouteHighlighted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TreeLoaded:
		return "tree_loaded"
	case RouteHighlighted:
		return "route_highlighted"
	}
	return "unknown"
}

// Fetcher retrieves the raw tree record of a directed edge.
type Fetcher interface {
	FetchTree(ctx context.Context, id edgeid.DirectedEdgeID) (*flowtree.RawTreeRecord, error)
}

// Session holds the current tree and highlight state. It is safe for
// concurrent use; fetches run without holding the lock.
type Session struct {
	fetcher Fetcher
	sink    Sink

	mu      sync.Mutex
	gen     uint64 // bumped by every Select and Clear
	pending edgeid.DirectedEdgeID
	cancel  context.CancelFunc

	tree     *flowtree.FlowTree
	states   map[edgeid.DirectedEdgeID]HighlightState
	route    flowtree.EdgeSet
	hovered  edgeid.DirectedEdgeID
	hovering bool
}

// New creates an idle Session. A nil sink discards updates.
func New(fetcher Fetcher, sink Sink) *Session {
	if sink == nil {
		sink = nopSink{}
	}
	return &Session{
		fetcher: fetcher,
		sink:    sink,
		states:  make(map[edgeid.DirectedEdgeID]HighlightState),
	}
}

// Select fetches and loads the tree of id, replacing any current tree and
// route. On error the previous tree and highlight state are kept.
//
// A Select overtaken by a later Select or by Clear before its fetch returns
// is stale: its fetch context is cancelled, its result is dropped and it
// returns nil.
func (s *Session) Select(ctx context.Context, id edgeid.DirectedEdgeID) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.pending = id
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	rec, err := s.fetcher.FetchTree(fetchCtx, id)
	var tree *flowtree.FlowTree
	if err == nil {
		tree, err = flowtree.Decode(rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.pending != id {
		return nil
	}
	s.cancel = nil

	if err != nil {
		return fmt.Errorf("select edge %d: %w", id, err)
	}

	s.load(tree)
	return nil
}

// load replaces the tree and rewrites all highlight state. Caller holds mu.
func (s *Session) load(tree *flowtree.FlowTree) {
	s.sink.ResetFeatureState()

	states := make(map[edgeid.DirectedEdgeID]HighlightState, len(tree.Origins)+len(tree.Destinations))
	for id, e := range tree.Origins {
		st := states[id]
		st.Origin = true
		st.OriginCount = e.Count
		st.OriginID = id
		states[id] = st
	}
	for id, e := range tree.Destinations {
		st := states[id]
		st.Destination = true
		st.DestinationCount = e.Count
		st.DestinationID = id
		states[id] = st
	}

	for _, id := range slices.Sorted(maps.Keys(states)) {
		s.sink.SetFeatureState(id, states[id])
	}

	s.tree = tree
	s.states = states
	s.route = nil
	s.hovering = false
}

// Hover traces the route through the sub-tree id belongs to. Edges that are
// in neither sub-tree leave everything unchanged; Hover reports whether a
// route was drawn. An edge in both sub-trees traces its origin route.
func (s *Session) Hover(id edgeid.DirectedEdgeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[id]
	if s.tree == nil || !ok {
		return false
	}
	switch {
	case st.Origin:
		s.highlight(id, st.OriginID, flowtree.Origin)
	case st.Destination:
		s.highlight(id, st.DestinationID, flowtree.Destination)
	default:
		return false
	}
	return true
}

// HoverIn is Hover restricted to one sub-tree, for views that draw origins
// and destinations as separate layers.
func (s *Session) HoverIn(id edgeid.DirectedEdgeID, dir flowtree.Direction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[id]
	if s.tree == nil || !ok {
		return false
	}
	switch {
	case dir == flowtree.Origin && st.Origin:
		s.highlight(id, st.OriginID, flowtree.Origin)
	case dir == flowtree.Destination && st.Destination:
		s.highlight(id, st.DestinationID, flowtree.Destination)
	default:
		return false
	}
	return true
}

// highlight moves the hover flag to id and replaces the route with the
// closure from root. Only edges whose state changed reach the sink. Caller
// holds mu.
func (s *Session) highlight(id, root edgeid.DirectedEdgeID, dir flowtree.Direction) {
	closure := flowtree.ReachableClosure(s.tree, root, dir)
	changed := make(map[edgeid.DirectedEdgeID]struct{})

	update := func(k edgeid.DirectedEdgeID, fn func(*HighlightState)) {
		st := s.states[k]
		before := st
		fn(&st)
		if st != before {
			s.states[k] = st
			changed[k] = struct{}{}
		}
	}

	if s.hovering && s.hovered != id {
		update(s.hovered, func(st *HighlightState) { st.Hovered = false })
	}
	update(id, func(st *HighlightState) { st.Hovered = true })

	for k := range s.route {
		if !closure.Has(k) {
			update(k, func(st *HighlightState) { st.Route = false })
		}
	}
	for k := range closure {
		update(k, func(st *HighlightState) { st.Route = true })
	}

	s.route = closure
	s.hovered = id
	s.hovering = true

	for _, k := range slices.Sorted(maps.Keys(changed)) {
		st := s.states[k]
		if st.IsZero() {
			delete(s.states, k)
			s.sink.RemoveFeatureState(k)
			continue
		}
		s.sink.SetFeatureState(k, st)
	}
}

// Clear drops the tree, the route and any pending selection.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++

	s.tree = nil
	s.states = make(map[edgeid.DirectedEdgeID]HighlightState)
	s.route = nil
	s.hovering = false
	s.sink.ResetFeatureState()
}

// State returns the current selection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.tree == nil:
		return Idle
	case s.hovering:
		return RouteHighlighted
	}
	return TreeLoaded
}

// Tree returns the current tree, or nil when idle.
func (s *Session) Tree() *flowtree.FlowTree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// Route returns the highlighted route in ascending key order.
func (s *Session) Route() []edgeid.DirectedEdgeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route.Sorted()
}

// Highlights returns a copy of the per-edge highlight state.
func (s *Session) Highlights() map[edgeid.DirectedEdgeID]HighlightState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.states)
}
