package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vitrine/vitrine/pkg/api/response"
	"github.com/vitrine/vitrine/pkg/logger"
	"github.com/vitrine/vitrine/pkg/storage"
)

// SessionHandler exposes read-only session state.
type SessionHandler struct {
	sessions SessionReader
	log      logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions SessionReader, log logger.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log}
}

// SessionListResponse pages session ids.
type SessionListResponse struct {
	Sessions []string `json:"sessions"`
	Total    int      `json:"total"`
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
}

// GetSession handles GET /api/v1/sessions/{sessionID}
//
//	@Summary		Get a session snapshot
//	@Description	Returns the stored conversation memory of a session. Sessions without any stored turn are reported as not found.
//	@Tags			sessions
//	@Produce		json
//	@Param			sessionID	path		string	true	"Session ID"
//	@Success		200			{object}	memory.ConversationMemory
//	@Failure		404			{object}	response.ErrorResponse
//	@Failure		500			{object}	response.ErrorResponse
//	@Router			/api/v1/sessions/{sessionID} [get]
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Session ID is required", getRequestID(ctx))
		return
	}

	snap, err := h.sessions.Session(ctx, sessionID)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to load session", "session_id", sessionID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to load session", getRequestID(ctx))
		return
	}
	if snap == nil || len(snap.Messages) == 0 {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Session not found", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, snap)
}

// ListSessions handles GET /api/v1/sessions
//
//	@Summary		List sessions
//	@Description	Pages session ids, most recently active first.
//	@Tags			sessions
//	@Produce		json
//	@Param			limit	query		int	false	"Page size (default 50)"
//	@Param			offset	query		int	false	"Offset"
//	@Success		200		{object}	SessionListResponse
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		500		{object}	response.ErrorResponse
//	@Router			/api/v1/sessions [get]
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := &storage.ListFilter{}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid "+name+" parameter", getRequestID(ctx))
			return
		}
		*dst = v
	}
	page := filter.Normalize()

	ids, total, err := h.sessions.Sessions(ctx, &page)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to list sessions", "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to list sessions", getRequestID(ctx))
		return
	}
	if ids == nil {
		ids = []string{}
	}

	response.JSON(w, http.StatusOK, SessionListResponse{
		Sessions: ids,
		Total:    total,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
}
