package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vslides_samples_total",
		Help: "Total number of video instants sampled and fingerprinted",
	})

	CandidatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vslides_stability_candidates_total",
		Help: "Total number of stable frames handed to deduplication",
	})

	FramesAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vslides_frames_accepted_total",
		Help: "Total number of slides kept",
	})

	FramesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vslides_frames_rejected_total",
		Help: "Total number of stability candidates dropped, by reason",
	}, []string{"reason"})

	ExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vslides_extractions_total",
		Help: "Total number of extraction runs, by final status",
	}, []string{"status"})

	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vslides_extraction_duration_seconds",
		Help:    "Wall time of extraction runs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	ActiveExtractions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vslides_active_extractions",
		Help: "Number of extraction runs in flight",
	})

	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vslides_exports_total",
		Help: "Total number of PDF exports, by status",
	}, []string{"status"})
)
