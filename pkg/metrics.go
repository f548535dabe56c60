package uptree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation I/O
	listingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uptree_listings_total",
			Help: "Total number of directory listings fetched during reconciliation",
		},
	)

	statsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uptree_stats_total",
			Help: "Total number of file metadata checks",
		},
	)

	readsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uptree_reads_total",
			Help: "Total number of file content fetches",
		},
	)

	// Content cache effectiveness
	contentHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uptree_content_cache_hits_total",
			Help: "Total number of Open calls served from cached content with zero I/O",
		},
	)

	contentMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uptree_content_cache_misses_total",
			Help: "Total number of Open calls that had to fetch content",
		},
	)

	// Update outcomes
	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uptree_updates_total",
			Help: "Total number of reconciliation passes by result",
		},
		[]string{"result"},
	)

	nodesReconciled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uptree_nodes_changed_total",
			Help: "Total number of tree nodes added or removed by reconciliation",
		},
	)
)

// observeUpdate records one reconciliation pass against the update metrics
func observeUpdate(result *UpdateResult) {
	if result.Success {
		updatesTotal.WithLabelValues("success").Inc()
	} else {
		updatesTotal.WithLabelValues("partial").Inc()
	}
	nodesReconciled.Add(float64(result.Counters.NodesAdded + result.Counters.NodesRemoved))
}
