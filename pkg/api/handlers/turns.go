package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vitrine/vitrine/pkg/api/response"
	"github.com/vitrine/vitrine/pkg/conversation"
	"github.com/vitrine/vitrine/pkg/logger"
)

// maxTurnBodyBytes bounds a turn request body.
const maxTurnBodyBytes = 64 << 10

// TurnHandler handles conversation turns.
type TurnHandler struct {
	turns TurnService
	log   logger.Logger
}

// NewTurnHandler creates a new turn handler.
func NewTurnHandler(turns TurnService, log logger.Logger) *TurnHandler {
	return &TurnHandler{turns: turns, log: log}
}

// TurnRequest is the body of POST /api/v1/sessions/{sessionID}/turns.
type TurnRequest struct {
	Utterance string `json:"utterance" example:"quero um drone com camera"`
	Locale    string `json:"locale,omitempty" example:"pt-BR"`
}

// CreateTurn handles POST /api/v1/sessions/{sessionID}/turns
//
//	@Summary		Run a conversation turn
//	@Description	Resolves the utterance against session memory, retrieves grounded catalog candidates and returns a manifest-validated answer.
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			sessionID	path		string			true	"Session ID"
//	@Param			turn		body		TurnRequest		true	"Utterance"
//	@Success		200			{object}	conversation.TurnResponse
//	@Failure		400			{object}	response.ErrorResponse
//	@Failure		429			{object}	response.ErrorResponse
//	@Failure		503			{object}	response.ErrorResponse
//	@Failure		504			{object}	response.ErrorResponse
//	@Router			/api/v1/sessions/{sessionID}/turns [post]
func (h *TurnHandler) CreateTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Session ID is required", getRequestID(ctx))
		return
	}

	var req TurnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTurnBodyBytes)).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	resp, err := h.turns.HandleTurn(ctx, conversation.TurnRequest{
		SessionID: sessionID,
		Utterance: req.Utterance,
		Locale:    req.Locale,
	})
	if err != nil {
		status, code := turnErrorStatus(err)
		if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
			h.log.ErrorContext(ctx, "Failed to process turn", "session_id", sessionID, "error", err)
		}
		response.Error(w, status, code, turnErrorMessage(status, err), getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, resp)
}
