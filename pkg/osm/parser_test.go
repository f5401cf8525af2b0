package osm

import (
	"testing"

	"github.com/paulmach/osm"
)

func TestIsCycleAccessible(t *testing.T) {
	tests := []struct {
		name string
		tags osm.Tags
		want bool
	}{
		{
			name: "residential road",
			tags: osm.Tags{{Key: "highway", Value: "residential"}},
			want: true,
		},
		{
			name: "cycleway",
			tags: osm.Tags{{Key: "highway", Value: "cycleway"}},
			want: true,
		},
		{
			name: "motorway (not cycle accessible)",
			tags: osm.Tags{{Key: "highway", Value: "motorway"}},
			want: false,
		},
		{
			name: "footway without bicycle tag",
			tags: osm.Tags{{Key: "highway", Value: "footway"}},
			want: false,
		},
		{
			name: "footway with bicycle=yes",
			tags: osm.Tags{
				{Key: "highway", Value: "footway"},
				{Key: "bicycle", Value: "yes"},
			},
			want: true,
		},
		{
			name: "path designated for bicycles",
			tags: osm.Tags{
				{Key: "highway", Value: "path"},
				{Key: "bicycle", Value: "designated"},
			},
			want: true,
		},
		{
			name: "bicycle=no",
			tags: osm.Tags{
				{Key: "highway", Value: "primary"},
				{Key: "bicycle", Value: "no"},
			},
			want: false,
		},
		{
			name: "bicycle=dismount",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "bicycle", Value: "dismount"},
			},
			want: false,
		},
		{
			name: "private access",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "access", Value: "private"},
			},
			want: false,
		},
		{
			name: "access=no overridden by bicycle=permissive",
			tags: osm.Tags{
				{Key: "highway", Value: "service"},
				{Key: "access", Value: "no"},
				{Key: "bicycle", Value: "permissive"},
			},
			want: true,
		},
		{
			name: "area=yes (pedestrian plaza)",
			tags: osm.Tags{
				{Key: "highway", Value: "service"},
				{Key: "area", Value: "yes"},
			},
			want: false,
		},
		{
			name: "no highway tag",
			tags: osm.Tags{{Key: "name", Value: "Some Street"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isCycleAccessible(tt.tags)
			if got != tt.want {
				t.Errorf("isCycleAccessible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDirectionFlags(t *testing.T) {
	tests := []struct {
		name         string
		tags         osm.Tags
		wantForward  bool
		wantBackward bool
	}{
		{
			name:         "default bidirectional",
			tags:         osm.Tags{{Key: "highway", Value: "residential"}},
			wantForward:  true,
			wantBackward: true,
		},
		{
			name: "roundabout implied oneway",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "junction", Value: "roundabout"},
			},
			wantForward:  true,
			wantBackward: false,
		},
		{
			name: "explicit oneway=yes",
			tags: osm.Tags{
				{Key: "highway", Value: "primary"},
				{Key: "oneway", Value: "yes"},
			},
			wantForward:  true,
			wantBackward: false,
		},
		{
			name: "explicit oneway=-1",
			tags: osm.Tags{
				{Key: "highway", Value: "primary"},
				{Key: "oneway", Value: "-1"},
			},
			wantForward:  false,
			wantBackward: true,
		},
		{
			name: "oneway with contraflow oneway:bicycle=no",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "oneway", Value: "yes"},
				{Key: "oneway:bicycle", Value: "no"},
			},
			wantForward:  true,
			wantBackward: true,
		},
		{
			name: "oneway with cycleway=opposite_lane",
			tags: osm.Tags{
				{Key: "highway", Value: "residential"},
				{Key: "oneway", Value: "yes"},
				{Key: "cycleway", Value: "opposite_lane"},
			},
			wantForward:  true,
			wantBackward: true,
		},
		{
			name: "oneway:bicycle=yes on two-way road",
			tags: osm.Tags{
				{Key: "highway", Value: "cycleway"},
				{Key: "oneway:bicycle", Value: "yes"},
			},
			wantForward:  true,
			wantBackward: false,
		},
		{
			name: "oneway=reversible skips entirely",
			tags: osm.Tags{
				{Key: "highway", Value: "primary"},
				{Key: "oneway", Value: "reversible"},
			},
			wantForward:  false,
			wantBackward: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fwd, bwd := directionFlags(tt.tags)
			if fwd != tt.wantForward || bwd != tt.wantBackward {
				t.Errorf("directionFlags() = (%v, %v), want (%v, %v)", fwd, bwd, tt.wantForward, tt.wantBackward)
			}
		})
	}
}

func TestFilterWays(t *testing.T) {
	lat := map[osm.NodeID]float64{1: 1.30, 2: 1.31, 3: 1.50}
	lon := map[osm.NodeID]float64{1: 103.80, 2: 103.81, 3: 103.90}
	ways := []RawWay{
		{ID: 10, NodeIDs: []osm.NodeID{1, 2}},
		{ID: 11, NodeIDs: []osm.NodeID{2, 3}},
		{ID: 12, NodeIDs: []osm.NodeID{2, 4}},
	}

	kept, dropped := filterWays(append([]RawWay(nil), ways...), lat, lon, BBox{})
	if len(kept) != 2 || dropped != 1 {
		t.Fatalf("no bbox: kept %d dropped %d, want 2 and 1", len(kept), dropped)
	}

	bbox := BBox{MinLat: 1.2, MaxLat: 1.4, MinLng: 103.7, MaxLng: 103.85}
	kept, dropped = filterWays(append([]RawWay(nil), ways...), lat, lon, bbox)
	if len(kept) != 1 || kept[0].ID != 10 || dropped != 2 {
		t.Errorf("bbox: kept %v dropped %d, want [10] and 2", kept, dropped)
	}
}
