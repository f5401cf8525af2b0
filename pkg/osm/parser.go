package osm

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
)

// RawWay is a way usable by bicycles, with the travel directions it allows.
type RawWay struct {
	ID       osm.WayID
	NodeIDs  []osm.NodeID
	Forward  bool // travel along node order
	Backward bool // travel against node order
}

// ParseResult holds the output of parsing an OSM PBF file.
type ParseResult struct {
	Ways    []RawWay
	NodeLat map[osm.NodeID]float64
	NodeLon map[osm.NodeID]float64
}

// cycleHighways lists highway tag values a bicycle may use without an
// explicit bicycle tag.
var cycleHighways = map[string]bool{
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
	"cycleway":       true,
	"track":          true,
	"road":           true,
}

// isCycleAccessible returns true if the way may be ridden by bicycle.
func isCycleAccessible(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if hw == "" {
		return false
	}
	if tags.Find("area") == "yes" {
		return false
	}

	bicycle := tags.Find("bicycle")
	switch bicycle {
	case "no", "dismount", "private":
		return false
	case "yes", "designated", "permissive":
		return true
	}

	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}

	return cycleHighways[hw]
}

// directionFlags returns (forward, backward) for a bicycle on the way.
func directionFlags(tags osm.Tags) (forward, backward bool) {
	forward = true
	backward = true

	if tags.Find("junction") == "roundabout" {
		backward = false
	}

	switch tags.Find("oneway") {
	case "yes", "true", "1":
		backward = false
	case "-1", "reverse":
		forward = false
	case "no":
		forward = true
		backward = true
	case "reversible":
		return false, false
	}

	// Contraflow cycling overrides the general oneway.
	switch tags.Find("oneway:bicycle") {
	case "no":
		forward = true
		backward = true
	case "yes":
		forward = true
		backward = false
	}
	if tags.Find("cycleway") == "opposite" || tags.Find("cycleway") == "opposite_lane" {
		backward = true
	}

	return forward, backward
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only ways with all nodes inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	BBox BBox
}

// Parse reads an OSM PBF file and returns the ways usable by bicycles.
// The reader is consumed twice (seeks back to start for the second pass),
// so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	// Pass 1: ways.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []RawWay

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if !isCycleAccessible(w.Tags) || len(w.Nodes) < 2 {
			continue
		}
		fwd, bwd := directionFlags(w.Tags)
		if !fwd && !bwd {
			continue
		}

		nodeIDs := w.Nodes.NodeIDs()
		for _, id := range nodeIDs {
			referencedNodes[id] = struct{}{}
		}
		ways = append(ways, RawWay{
			ID:       w.ID,
			NodeIDs:  nodeIDs,
			Forward:  fwd,
			Backward: bwd,
		})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 1 complete: %d ways, %d referenced nodes", len(ways), len(referencedNodes))

	// Pass 2: coordinates of referenced nodes.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	nodeLat := make(map[osm.NodeID]float64, len(referencedNodes))
	nodeLon := make(map[osm.NodeID]float64, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}
		nodeLat[n.ID] = n.Lat
		nodeLon[n.ID] = n.Lon
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 2 complete: %d node coordinates collected", len(nodeLat))

	kept, dropped := filterWays(ways, nodeLat, nodeLon, opt.BBox)
	if dropped > 0 {
		log.Printf("Dropped %d ways with missing or out-of-bbox nodes", dropped)
	}

	return &ParseResult{
		Ways:    kept,
		NodeLat: nodeLat,
		NodeLon: nodeLon,
	}, nil
}

// filterWays drops ways with a node lacking coordinates or lying outside a
// non-zero bbox.
func filterWays(ways []RawWay, nodeLat, nodeLon map[osm.NodeID]float64, bbox BBox) ([]RawWay, int) {
	kept := ways[:0]
	dropped := 0
	for _, w := range ways {
		ok := true
		for _, id := range w.NodeIDs {
			lat, found := nodeLat[id]
			if !found || (!bbox.IsZero() && !bbox.Contains(lat, nodeLon[id])) {
				ok = false
				break
			}
		}
		if !ok {
			dropped++
			continue
		}
		kept = append(kept, w)
	}
	return kept, dropped
}
