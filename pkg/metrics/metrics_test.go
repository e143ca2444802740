package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vitrine/vitrine/config"
)

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}
	if m.Registry() != nil {
		t.Error("Expected no registry when disabled")
	}
}

func TestFromConfig(t *testing.T) {
	c := FromConfig(config.MetricsConfig{Enabled: true, Port: 9300, Path: "/m"})
	if !c.Enabled || c.Port != 9300 || c.Path != "/m" {
		t.Fatalf("unexpected config %+v", c)
	}
	if len(c.TurnDurationBuckets) == 0 {
		t.Fatal("expected default buckets")
	}

	c = FromConfig(config.MetricsConfig{})
	if c.Enabled || c.Port != 9091 || c.Path != "/metrics" {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewManager(DefaultConfig())

	ctx := context.Background()
	m.RecordTurn(ctx, "retrieve", "answered", 300*time.Millisecond)
	m.RecordTurn(ctx, "focus", "answered", 50*time.Millisecond)
	m.ObserveTier("direct", "empty", 10*time.Millisecond)
	m.ObserveTier("reformulated", "hit", 20*time.Millisecond)
	m.ObserveManifest(8)
	m.AddDroppedIDs(2)
	m.ObserveGeneration("scripted", "ok", 5*time.Millisecond)
	m.SetSessionsActive(3)
	m.RecordWaitDuration("sessions", time.Millisecond)
	m.RecordHTTPRequest(ctx, "POST", "/api/v1/sessions/{id}/turns", "200", 10*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expectedMetrics := []string{
		"vitrine_turns_total",
		"vitrine_turn_duration_seconds",
		"vitrine_retrieval_tier_total",
		"vitrine_manifest_size",
		"vitrine_grounding_dropped_ids_total",
		"vitrine_generation_duration_seconds",
		"vitrine_sessions_active",
		"vitrine_lane_wait_seconds",
		"http_requests_total",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestCounters(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.ObserveTier("direct", "empty", 0)
	m.ObserveTier("direct", "empty", 0)
	m.ObserveTier("corrected", "skipped", 0)
	m.AddDroppedIDs(3)
	m.AddDroppedIDs(0)
	m.ObserveGeneration("scripted", "skipped", time.Second)

	if got := testutil.ToFloat64(m.tierResults.WithLabelValues("direct", "empty")); got != 2 {
		t.Errorf("direct/empty = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.tierResults.WithLabelValues("corrected", "skipped")); got != 1 {
		t.Errorf("corrected/skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.droppedIDs); got != 3 {
		t.Errorf("dropped = %v, want 3", got)
	}
	if n := testutil.CollectAndCount(m.generationDuration); n != 0 {
		t.Errorf("skipped generation should not be observed, got %d series", n)
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when disabled, got %d", w.Code)
	}
}

func TestStartServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Port = 19091 // Use different port for testing

	m := NewManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := m.StartServer(ctx, cfg.Port, cfg.Path); err != nil {
			errCh <- err
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://localhost:19091/metrics")
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	cancel()

	select {
	case err := <-errCh:
		t.Errorf("Server error: %v", err)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestNoOpManager(t *testing.T) {
	m := NoOpManager()

	if m.Enabled() {
		t.Error("NoOpManager should not be enabled")
	}

	// These should not panic
	ctx := context.Background()
	m.RecordTurn(ctx, "retrieve", "refine", time.Second)
	m.ObserveTier("direct", "hit", time.Millisecond)
	m.ObserveManifest(3)
	m.AddDroppedIDs(1)
	m.ObserveGeneration("openai", "ok", time.Second)
	m.SetSessionsActive(1)
	m.RecordWaitDuration("sessions", time.Millisecond)
	m.RecordHTTPRequest(ctx, "GET", "/health", "200", time.Millisecond)
	m.IncActiveConnections()
	m.DecActiveConnections()
	m.IncWebSocketConnections()
	m.DecWebSocketConnections()
}

func BenchmarkRecordTurn(b *testing.B) {
	m := NewManager(DefaultConfig())
	ctx := context.Background()
	d := 100 * time.Millisecond
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordTurn(ctx, "retrieve", "answered", d)
	}
}

func BenchmarkObserveTier(b *testing.B) {
	m := NewManager(DefaultConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.ObserveTier("direct", "hit", time.Millisecond)
	}
}

func BenchmarkNoOpRecording(b *testing.B) {
	m := NoOpManager()
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordTurn(ctx, "retrieve", "answered", time.Millisecond)
		m.ObserveTier("direct", "hit", time.Millisecond)
	}
}
