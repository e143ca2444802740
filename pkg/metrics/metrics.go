// Package metrics provides Prometheus metrics instrumentation for Vitrine.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitrine/vitrine/config"
)

const namespace = "vitrine"

// Manager manages all Prometheus metrics for Vitrine.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Turn metrics
	turns          *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	sessionsActive prometheus.Gauge

	// Retrieval and grounding metrics
	tierResults        *prometheus.CounterVec
	tierDuration       *prometheus.HistogramVec
	manifestSize       prometheus.Histogram
	droppedIDs         prometheus.Counter
	generationDuration *prometheus.HistogramVec

	// Lane metrics
	laneWaitDuration *prometheus.HistogramVec

	// HTTP metrics
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpConnections prometheus.Gauge
	wsConnections   prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Port    int
	Path    string

	// Histogram bucket configurations
	TurnDurationBuckets       []float64
	TierDurationBuckets       []float64
	GenerationDurationBuckets []float64
	LaneWaitBuckets           []float64
	HTTPDurationBuckets       []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:                   true,
		Port:                      9091,
		Path:                      "/metrics",
		TurnDurationBuckets:       []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		TierDurationBuckets:       []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 3},
		GenerationDurationBuckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		LaneWaitBuckets:           []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		HTTPDurationBuckets:       []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// FromConfig derives a metrics Config from the application configuration.
func FromConfig(cfg config.MetricsConfig) Config {
	c := DefaultConfig()
	c.Enabled = cfg.Enabled
	if cfg.Port > 0 {
		c.Port = cfg.Port
	}
	if cfg.Path != "" {
		c.Path = cfg.Path
	}
	return c
}

// NewManager creates a new metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}

	registry := prometheus.NewRegistry()

	// Register Go runtime metrics
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		enabled:  true,
	}

	m.initTurnMetrics(cfg)
	m.initRetrievalMetrics(cfg)
	m.initLaneMetrics(cfg)
	m.initHTTPMetrics(cfg)

	return m
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Registry returns the private registry, nil when disabled.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartServer starts the metrics HTTP server on the configured port.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// NoOpManager returns a no-op metrics manager for when metrics are disabled.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}
