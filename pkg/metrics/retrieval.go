package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initRetrievalMetrics initializes retrieval, manifest and generation metrics.
func (m *Manager) initRetrievalMetrics(cfg Config) {
	m.tierResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_tier_total",
			Help:      "Retrieval tier attempts by tier and result",
		},
		[]string{"tier", "result"},
	)

	m.tierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_tier_duration_seconds",
			Help:      "Retrieval tier duration in seconds",
			Buckets:   cfg.TierDurationBuckets,
		},
		[]string{"tier"},
	)

	m.manifestSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "manifest_size",
			Help:      "Number of entries in the grounding manifest",
			Buckets:   prometheus.LinearBuckets(0, 1, 9),
		},
	)

	m.droppedIDs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grounding_dropped_ids_total",
			Help:      "Generated product ids rejected because they were not in the manifest",
		},
	)

	m.generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Generation call duration in seconds",
			Buckets:   cfg.GenerationDurationBuckets,
		},
		[]string{"provider", "status"},
	)

	m.registry.MustRegister(m.tierResults)
	m.registry.MustRegister(m.tierDuration)
	m.registry.MustRegister(m.manifestSize)
	m.registry.MustRegister(m.droppedIDs)
	m.registry.MustRegister(m.generationDuration)
}

// ObserveTier records one retrieval tier attempt.
func (m *Manager) ObserveTier(tier, result string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.tierResults.WithLabelValues(tier, result).Inc()
	if duration > 0 {
		m.tierDuration.WithLabelValues(tier).Observe(duration.Seconds())
	}
}

// ObserveManifest records the manifest size of a turn.
func (m *Manager) ObserveManifest(size int) {
	if !m.enabled {
		return
	}
	m.manifestSize.Observe(float64(size))
}

// AddDroppedIDs counts ungrounded ids removed by the gate.
func (m *Manager) AddDroppedIDs(n int) {
	if !m.enabled || n <= 0 {
		return
	}
	m.droppedIDs.Add(float64(n))
}

// ObserveGeneration records a generation call. Skipped calls are not recorded.
func (m *Manager) ObserveGeneration(provider, status string, duration time.Duration) {
	if !m.enabled || status == "skipped" {
		return
	}
	m.generationDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
}
