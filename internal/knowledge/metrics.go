package knowledge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rag_index_records",
		Help: "Number of records in the active vector index",
	})

	buildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_index_build_duration_seconds",
			Help:    "Duration of index construction",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"origin"}, // origin: load, build
	)

	snapshotFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_snapshot_fallbacks_total",
		Help: "Corrupt snapshots that forced a full rebuild",
	})
)
