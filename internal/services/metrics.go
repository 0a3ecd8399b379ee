package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_chat_requests_total",
			Help: "Chat requests by outcome",
		},
		[]string{"outcome"}, // outcome: ok, apology, fallback
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_chat_stage_duration_seconds",
			Help:    "Duration of each chat pipeline stage",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	rewriteFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_rewrite_fallbacks_total",
		Help: "Query rewrites that fell back to the original question",
	})

	sourcesPerAnswer = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rag_sources_per_answer",
		Help:    "Number of references kept for an answer",
		Buckets: []float64{0, 1, 2, 3, 5, 8},
	})

	sessionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_session_store_errors_total",
			Help: "Session store failures",
		},
		[]string{"op"},
	)

	transcriptDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rag_transcript_dropped_total",
		Help: "Transcript events dropped or failed to publish",
	})
)
