package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initLaneMetrics initializes per-session lane metrics.
func (m *Manager) initLaneMetrics(cfg Config) {
	m.laneWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lane_wait_seconds",
			Help:      "Time turns spend waiting for their session lane",
			Buckets:   cfg.LaneWaitBuckets,
		},
		[]string{"lane"},
	)

	m.registry.MustRegister(m.laneWaitDuration)
}

// RecordWaitDuration records the time a turn spent waiting for its session.
func (m *Manager) RecordWaitDuration(laneName string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.laneWaitDuration.WithLabelValues(laneName).Observe(duration.Seconds())
}
