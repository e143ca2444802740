package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vitrine/vitrine/config"
	"github.com/vitrine/vitrine/pkg/api/handlers"
	"github.com/vitrine/vitrine/pkg/catalog/catalogtest"
	"github.com/vitrine/vitrine/pkg/conversation"
	"github.com/vitrine/vitrine/pkg/grounding"
	"github.com/vitrine/vitrine/pkg/llm"
	"github.com/vitrine/vitrine/pkg/logger"
	"github.com/vitrine/vitrine/pkg/memory"
	"github.com/vitrine/vitrine/pkg/retrieval"
	storagemem "github.com/vitrine/vitrine/pkg/storage/memory"
)

func testLogger() logger.Logger {
	return logger.New(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: "json",
		Output: "stdout",
	})
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
			HTTP: config.HTTPConfig{
				ReadTimeout:    5 * time.Second,
				WriteTimeout:   5 * time.Second,
				IdleTimeout:    10 * time.Second,
				RequestTimeout: 5 * time.Second,
			},
			CORS: config.CORSConfig{
				Enabled: false,
			},
		},
	}
}

// createTestHandlers wires a real engine over an in-memory store and a fake catalog.
func createTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	log := testLogger()

	fake := catalogtest.New().OnSearch("drone", catalogtest.Products("d", "loja-a", 3)...)
	store := memory.NewSessionStore(storagemem.NewMemoryStorage())
	corrector := retrieval.NewCorrector([]string{"drone"}, retrieval.DefaultCorrectionThreshold)
	retriever := retrieval.New(retrieval.DefaultTiers(fake, corrector, retrieval.DefaultMaxSuggestions))
	manager := handlers.NewConnectionManager(10, nil)

	eng, err := conversation.New(store, retriever, grounding.NewGate(llm.NewScripted()),
		conversation.WithObserver(manager),
		conversation.WithLogger(log),
	)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(context.Background()) })

	return &Handlers{
		Turns:     handlers.NewTurnHandler(eng, log),
		Sessions:  handlers.NewSessionHandler(eng, log),
		WebSocket: handlers.NewWebSocketHandler(log, eng, manager, handlers.WebSocketConfig{}),
		Health:    handlers.NewHealthHandler("test", eng, map[string]handlers.Pinger{"storage": store}),
	}
}

func TestNewRouter(t *testing.T) {
	router := NewRouter(testConfig(), testLogger(), &Handlers{})
	if router == nil {
		t.Fatal("NewRouter returned nil")
	}
}

func TestRegisterRoutes_HealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"health check", "/health", http.StatusOK},
		{"ready check", "/ready", http.StatusOK},
		{"status check", "/status", http.StatusOK},
		{"unknown route", "/nope", http.StatusNotFound},
	}

	router := NewRouter(testConfig(), testLogger(), createTestHandlers(t))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_TurnThenSnapshot(t *testing.T) {
	router := NewRouter(testConfig(), testLogger(), createTestHandlers(t))

	body, _ := json.Marshal(map[string]string{"utterance": "drone", "locale": "pt-BR"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/shopper-1/turns", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("turn status = %d, body: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	var turn conversation.TurnResponse
	if err := json.NewDecoder(w.Body).Decode(&turn); err != nil {
		t.Fatalf("failed to decode turn: %v", err)
	}
	if turn.Outcome != conversation.OutcomeAnswered || len(turn.Items) == 0 {
		t.Fatalf("expected a grounded answer, got %+v", turn)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/shopper-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d", w.Code)
	}
	var snap memory.ConversationMemory
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snap.CurrentFocusID != turn.FocusID || len(snap.Messages) != 2 {
		t.Errorf("snapshot does not reflect the turn: focus=%q messages=%d", snap.CurrentFocusID, len(snap.Messages))
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	var list handlers.SessionListResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if list.Total != 1 || len(list.Sessions) != 1 || list.Sessions[0] != "shopper-1" {
		t.Errorf("unexpected session list: %+v", list)
	}
}

func TestRegisterRoutes_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}
	router := NewRouter(cfg, testLogger(), createTestHandlers(t))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}
