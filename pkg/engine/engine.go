// Package engine serves flow trees, vector tiles and point lookups from a
// loaded counts network.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"traffic_counts/pkg/counts"
	"traffic_counts/pkg/edgeid"
	"traffic_counts/pkg/flowtree"
	"traffic_counts/pkg/graph"
	"traffic_counts/pkg/spatial"
	"traffic_counts/pkg/tiles"
)

// Snap is the directed edge chosen for a clicked point: the forward edge of
// the nearest segment.
type Snap struct {
	SegmentID      uint64
	EdgeID         edgeid.DirectedEdgeID
	DistanceMeters float64
}

// Source is the interface for tree, tile and nearest-segment queries.
type Source interface {
	Tree(ctx context.Context, id edgeid.DirectedEdgeID) (*flowtree.FlowTree, error)
	Tile(ctx context.Context, z, x, y uint32) ([]byte, error)
	TileJSON(baseURL string) tiles.TileJSON
	Nearest(ctx context.Context, lat, lng float64) (Snap, error)
}

// Options configures an Engine.
type Options struct {
	Trees         counts.TreeOptions
	Tiles         tiles.Options
	MaxSnapMeters float64
}

// Stats summarizes the loaded data.
type Stats struct {
	NumSegments   uint32
	NumTrips      int
	NumEdges      int // directed edges travelled by at least one trip
	NumComponents int
}

// Engine implements Source over a Network and its trips.
type Engine struct {
	net     *graph.Network
	counts  *counts.Index
	spatial *spatial.Index
	tiles   *tiles.Encoder
	opts    Options

	// Concurrent requests for the same tree or tile share one build.
	group singleflight.Group
}

// New indexes n for serving.
func New(n *graph.Network, opts Options) *Engine {
	ci := counts.FromNetwork(n)
	si := spatial.NewIndex(n)
	fwd, bwd := ci.SegmentCounts(n.NumSegments)

	return &Engine{
		net:     n,
		counts:  ci,
		spatial: si,
		tiles:   tiles.NewEncoder(n, si, fwd, bwd, opts.Tiles),
		opts:    opts,
	}
}

// Stats returns counts of the loaded data.
func (e *Engine) Stats() Stats {
	return Stats{
		NumSegments:   e.net.NumSegments,
		NumTrips:      e.counts.NumTrips(),
		NumEdges:      e.counts.NumEdges(),
		NumComponents: graph.CountComponents(e.net),
	}
}

// Tree builds the flow tree of id.
func (e *Engine) Tree(ctx context.Context, id edgeid.DirectedEdgeID) (*flowtree.FlowTree, error) {
	if !e.net.HasSegment(id.SegmentID()) {
		treeBuildsTotal.WithLabelValues("unknown_edge").Inc()
		return nil, fmt.Errorf("%w: segment %d not in network", counts.ErrUnknownEdge, id.SegmentID())
	}

	v, err := e.shared(ctx, "tree/"+id.String(), func() (any, error) {
		start := time.Now()
		t, err := e.counts.Tree(id, e.opts.Trees)
		treeBuildDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			treeBuildsTotal.WithLabelValues("unknown_edge").Inc()
			return nil, err
		}
		treeBuildsTotal.WithLabelValues("success").Inc()
		treeSize.Observe(float64(len(t.Origins) + len(t.Destinations)))
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*flowtree.FlowTree), nil
}

// Tile encodes vector tile z/x/y.
func (e *Engine) Tile(ctx context.Context, z, x, y uint32) ([]byte, error) {
	key := "tile/" + strconv.FormatUint(uint64(z), 10) + "/" +
		strconv.FormatUint(uint64(x), 10) + "/" + strconv.FormatUint(uint64(y), 10)

	v, err := e.shared(ctx, key, func() (any, error) {
		start := time.Now()
		data, err := e.tiles.Tile(z, x, y)
		tileEncodeDuration.Observe(time.Since(start).Seconds())
		return data, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// TileJSON returns the tile source document for baseURL.
func (e *Engine) TileJSON(baseURL string) tiles.TileJSON {
	return e.tiles.TileJSON(baseURL)
}

// Nearest snaps lat/lng to the closest segment.
func (e *Engine) Nearest(ctx context.Context, lat, lng float64) (Snap, error) {
	if err := ctx.Err(); err != nil {
		return Snap{}, err
	}
	s, err := e.spatial.Nearest(lat, lng, e.opts.MaxSnapMeters)
	if err != nil {
		return Snap{}, err
	}
	return Snap{
		SegmentID:      uint64(s.Segment),
		EdgeID:         edgeid.FromSegment(uint64(s.Segment), true),
		DistanceMeters: s.Dist,
	}, nil
}

// shared runs fn once per key among concurrent callers and stops waiting
// when ctx ends. The build itself runs to completion for the other waiters.
func (e *Engine) shared(ctx context.Context, key string, fn func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := e.group.DoChan(key, fn)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			sharedBuildsTotal.Inc()
		}
		return res.Val, res.Err
	}
}
