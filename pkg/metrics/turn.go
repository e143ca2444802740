package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initTurnMetrics initializes turn-level metrics.
func (m *Manager) initTurnMetrics(cfg Config) {
	m.turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of turns by path and outcome",
		},
		[]string{"path", "outcome"},
	)

	m.turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Turn duration in seconds",
			Buckets:   cfg.TurnDurationBuckets,
		},
		[]string{"path"},
	)

	m.sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions with a turn queued or running",
		},
	)

	m.registry.MustRegister(m.turns)
	m.registry.MustRegister(m.turnDuration)
	m.registry.MustRegister(m.sessionsActive)
}

// RecordTurn records a finished turn. The duration carries a trace exemplar
// when ctx holds a sampled span.
func (m *Manager) RecordTurn(ctx context.Context, path, outcome string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.turns.WithLabelValues(path, outcome).Inc()
	observeWithExemplar(ctx, m.turnDuration.WithLabelValues(path), duration.Seconds())
}

// SetSessionsActive sets the number of sessions with a turn in flight.
func (m *Manager) SetSessionsActive(n int) {
	if !m.enabled {
		return
	}
	m.sessionsActive.Set(float64(n))
}
