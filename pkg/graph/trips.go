package graph

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/osm"
)

// maxTripLine bounds one line of a trips file.
const maxTripLine = 16 << 20

// ReadTrips parses a trips file: one trip per line, OSM node ids separated
// by commas or whitespace. Blank lines and lines starting with '#' are
// skipped.
func ReadTrips(r io.Reader) ([][]osm.NodeID, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxTripLine)

	var trips [][]osm.NodeID
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		trip := make([]osm.NodeID, 0, len(fields))
		for _, f := range fields {
			id, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid node id %q", line, f)
			}
			trip = append(trip, osm.NodeID(id))
		}
		trips = append(trips, trip)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trips: %w", err)
	}
	return trips, nil
}

// MatchTrips matches every trip onto n and stores the resulting runs.
// It returns the number of runs stored and the number of trips that
// matched no edge at all.
func MatchTrips(n *Network, trips [][]osm.NodeID) (stored, unmatched int) {
	m := NewMatcher(n)
	for _, t := range trips {
		runs := m.Match(t)
		if len(runs) == 0 {
			unmatched++
			continue
		}
		for _, run := range runs {
			n.AddTrip(run)
			stored++
		}
	}
	return stored, unmatched
}
