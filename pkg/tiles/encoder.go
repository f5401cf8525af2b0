// Package tiles renders segment counts as Mapbox vector tiles.
package tiles

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/simplify"

	"traffic_counts/pkg/graph"
	"traffic_counts/pkg/spatial"
)

// DefaultLayer is the vector layer name map styles refer to.
const DefaultLayer = "bikedata"

// maxZoom is the deepest zoom level a tile may be requested at.
const maxZoom = 22

// Feature property names.
const (
	PropID            = "id"
	PropForwardCount  = "forward_count"
	PropBackwardCount = "backward_count"
)

// ErrInvalidTile is returned for tile coordinates outside the pyramid or
// above the maximum zoom.
var ErrInvalidTile = errors.New("invalid tile coordinates")

// Options configures an Encoder.
type Options struct {
	Layer   string
	MinZoom uint32
	MaxZoom uint32
}

// Encoder renders tiles from a network and its per-direction counts.
type Encoder struct {
	net      *graph.Network
	index    *spatial.Index
	forward  []uint32
	backward []uint32
	opts     Options
	bound    orb.Bound
}

// NewEncoder creates an Encoder. forward and backward are indexed by
// segment id.
func NewEncoder(n *graph.Network, ix *spatial.Index, forward, backward []uint32, opts Options) *Encoder {
	if opts.Layer == "" {
		opts.Layer = DefaultLayer
	}
	if opts.MaxZoom == 0 {
		opts.MaxZoom = 16
	}
	opts.MaxZoom = min(opts.MaxZoom, maxZoom)

	bound := orb.Bound{Min: orb.Point{-180, -85.0511}, Max: orb.Point{180, 85.0511}}
	if n.NumSegments > 0 {
		bound = n.Bound(0)
		for s := uint32(1); s < n.NumSegments; s++ {
			bound = bound.Union(n.Bound(s))
		}
	}

	return &Encoder{
		net:      n,
		index:    ix,
		forward:  forward,
		backward: backward,
		opts:     opts,
		bound:    bound,
	}
}

// Layer returns the vector layer name.
func (e *Encoder) Layer() string {
	return e.opts.Layer
}

// Tile encodes tile z/x/y. Tiles below the minimum zoom are valid but empty.
func (e *Encoder) Tile(z, x, y uint32) ([]byte, error) {
	if z > e.opts.MaxZoom {
		return nil, fmt.Errorf("%w: zoom %d above %d", ErrInvalidTile, z, e.opts.MaxZoom)
	}
	tile := maptile.New(x, y, maptile.Zoom(z))
	if !tile.Valid() {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrInvalidTile, z, x, y)
	}

	fc := geojson.NewFeatureCollection()
	if z >= e.opts.MinZoom {
		// A small buffer keeps lines that cross the tile edge continuous.
		for _, s := range e.index.Search(tile.Bound(0.05)) {
			f := geojson.NewFeature(e.net.Geometry(s))
			f.ID = uint64(s)
			f.Properties[PropID] = uint64(s)
			f.Properties[PropForwardCount] = e.count(e.forward, s)
			f.Properties[PropBackwardCount] = e.count(e.backward, s)
			fc.Append(f)
		}
	}

	layers := mvt.Layers{mvt.NewLayer(e.opts.Layer, fc)}
	layers.ProjectToTile(tile)
	layers.Clip(mvt.MapboxGLDefaultExtentBound)
	layers.Simplify(simplify.DouglasPeucker(1.0))
	layers.RemoveEmpty(1.0, 1.0)

	data, err := mvt.Marshal(layers)
	if err != nil {
		return nil, fmt.Errorf("marshal tile %d/%d/%d: %w", z, x, y, err)
	}
	return data, nil
}

func (e *Encoder) count(counts []uint32, s uint32) uint32 {
	if int(s) < len(counts) {
		return counts[s]
	}
	return 0
}

// VectorLayer describes one layer in a TileJSON document.
type VectorLayer struct {
	ID      string            `json:"id"`
	Fields  map[string]string `json:"fields"`
	MinZoom uint32            `json:"minzoom"`
	MaxZoom uint32            `json:"maxzoom"`
}

// TileJSON is the TileJSON 3.0 document served next to the tiles.
type TileJSON struct {
	TileJSON     string        `json:"tilejson"`
	Name         string        `json:"name"`
	Scheme       string        `json:"scheme"`
	Tiles        []string      `json:"tiles"`
	MinZoom      uint32        `json:"minzoom"`
	MaxZoom      uint32        `json:"maxzoom"`
	Bounds       [4]float64    `json:"bounds"`
	Center       [3]float64    `json:"center"`
	VectorLayers []VectorLayer `json:"vector_layers"`
}

// TileJSON returns the document for tiles served under baseURL, e.g.
// "http://localhost:8080".
func (e *Encoder) TileJSON(baseURL string) TileJSON {
	c := e.bound.Center()
	return TileJSON{
		TileJSON: "3.0.0",
		Name:     "traffic counts",
		Scheme:   "xyz",
		Tiles:    []string{baseURL + "/tiles/{z}/{x}/{y}.mvt"},
		MinZoom:  e.opts.MinZoom,
		MaxZoom:  e.opts.MaxZoom,
		Bounds:   [4]float64{e.bound.Min.Lon(), e.bound.Min.Lat(), e.bound.Max.Lon(), e.bound.Max.Lat()},
		Center:   [3]float64{c.Lon(), c.Lat(), float64(max(e.opts.MinZoom, min(14, e.opts.MaxZoom)))},
		VectorLayers: []VectorLayer{{
			ID: e.opts.Layer,
			Fields: map[string]string{
				PropID:            "Number",
				PropForwardCount:  "Number",
				PropBackwardCount: "Number",
			},
			MinZoom: e.opts.MinZoom,
			MaxZoom: e.opts.MaxZoom,
		}},
	}
}
