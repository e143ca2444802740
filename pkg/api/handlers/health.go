package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vitrine/vitrine/pkg/api/response"
	"github.com/vitrine/vitrine/pkg/lane"
)

const readyCheckTimeout = 2 * time.Second

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LaneReporter reports session lane counters. *conversation.Engine implements it.
type LaneReporter interface {
	LaneStats() lane.Stats
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version string
	started time.Time
	checks  map[string]Pinger
	lanes   LaneReporter
}

// NewHealthHandler creates a new health handler. checks are pinged by /ready.
func NewHealthHandler(version string, lanes LaneReporter, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		version: version,
		started: time.Now(),
		checks:  checks,
		lanes:   lanes,
	}
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	Version       string     `json:"version"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	Lanes         lane.Stats `json:"lanes"`
}

// Health handles the /health endpoint (liveness probe).
//
//	@Summary	Liveness probe
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe).
//
//	@Summary	Readiness probe
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Failure	503	{object}	map[string]any
//	@Router		/ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	ready := true
	failures := make(map[string]string)
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			ready = false
			failures[name] = err.Error()
		}
	}

	body := map[string]any{"ready": ready}
	if !ready {
		body["checks"] = failures
		response.JSON(w, http.StatusServiceUnavailable, body)
		return
	}
	response.JSON(w, http.StatusOK, body)
}

// Status handles the /status endpoint (detailed status).
//
//	@Summary	Service status
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Router		/status [get]
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := StatusResponse{
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	if h.lanes != nil {
		status.Lanes = h.lanes.LaneStats()
	}
	response.JSON(w, http.StatusOK, status)
}
