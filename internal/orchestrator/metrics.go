package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storiesAssembled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyteller_stories_assembled_total",
		Help: "Number of story assembly runs by terminal status.",
	}, []string{"status"})

	pagesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyteller_pages_rejected_total",
		Help: "Number of generated pages rejected by content moderation.",
	})

	assemblyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storyteller_assembly_duration_seconds",
		Help:    "End-to-end story assembly duration.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
