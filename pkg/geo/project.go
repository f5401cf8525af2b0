// Package geo projects points onto segment polylines.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Project returns the point on segment ab closest to p and the projection
// ratio along ab, clamped to [0,1]. The projection is done in an
// equirectangular plane, which is accurate for the short spans between
// OSM nodes.
func Project(p, a, b orb.Point) (closest orb.Point, ratio float64) {
	// Degenerate segment; compare before scaling, which adds float noise.
	if a == b {
		return a, 0
	}

	cosLat := math.Cos((a.Lat() + b.Lat()) / 2 * math.Pi / 180)
	dx := (b.Lon() - a.Lon()) * cosLat
	dy := b.Lat() - a.Lat()
	px := (p.Lon() - a.Lon()) * cosLat
	py := p.Lat() - a.Lat()

	t := (px*dx + py*dy) / (dx*dx + dy*dy)
	t = max(0, min(1, t))

	return orb.Point{
		a.Lon() + t*(b.Lon()-a.Lon()),
		a.Lat() + t*(b.Lat()-a.Lat()),
	}, t
}

// PointToSegmentDist returns the distance in meters from p to segment ab,
// and the projection ratio along ab.
func PointToSegmentDist(p, a, b orb.Point) (dist, ratio float64) {
	c, t := Project(p, a, b)
	return geo.Distance(p, c), t
}

// PointToLineDist returns the distance in meters from p to the closest part
// of ls. An empty line is infinitely far away.
func PointToLineDist(p orb.Point, ls orb.LineString) float64 {
	switch len(ls) {
	case 0:
		return math.Inf(1)
	case 1:
		return geo.Distance(p, ls[0])
	}

	best := math.Inf(1)
	for i := 1; i < len(ls); i++ {
		d, _ := PointToSegmentDist(p, ls[i-1], ls[i])
		best = min(best, d)
	}
	return best
}
