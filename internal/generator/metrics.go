package generator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiTokensUsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyteller_ai_tokens_total",
		Help: "Approximate number of AI tokens consumed by story generation.",
	})

	imagesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyteller_images_generated_total",
		Help: "Number of page illustrations generated successfully.",
	})

	imageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyteller_image_failures_total",
		Help: "Number of page illustration failures by reason.",
	}, []string{"reason"})

	fallbackStories = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyteller_fallback_stories_total",
		Help: "Number of stories built from the fallback template.",
	})
)
