package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// treeBuildsTotal counts tree builds by result: "success", "unknown_edge".
	treeBuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traffic_counts_tree_builds_total",
		Help: "Total flow tree builds by result",
	}, []string{"result"})

	treeBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "traffic_counts_tree_build_duration_seconds",
		Help:    "Flow tree build duration",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1},
	})

	treeSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "traffic_counts_tree_entries",
		Help:    "Origin plus destination entries per built tree",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	tileEncodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "traffic_counts_tile_encode_duration_seconds",
		Help:    "Vector tile encode duration",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1},
	})

	sharedBuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "traffic_counts_shared_builds_total",
		Help: "Requests served by a build another request started",
	})
)
