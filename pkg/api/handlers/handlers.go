// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/vitrine/vitrine/pkg/api/middleware"
	"github.com/vitrine/vitrine/pkg/api/response"
	"github.com/vitrine/vitrine/pkg/conversation"
	"github.com/vitrine/vitrine/pkg/lane"
	"github.com/vitrine/vitrine/pkg/memory"
	"github.com/vitrine/vitrine/pkg/storage"
)

// TurnService runs conversation turns. *conversation.Engine implements it.
type TurnService interface {
	HandleTurn(ctx context.Context, req conversation.TurnRequest) (*conversation.TurnResponse, error)
}

// SessionReader exposes read-only session state. *conversation.Engine implements it.
type SessionReader interface {
	Session(ctx context.Context, sessionID string) (*memory.ConversationMemory, error)
	Sessions(ctx context.Context, filter *storage.ListFilter) ([]string, int, error)
}

func getRequestID(ctx context.Context) string {
	if id := middleware.GetRequestID(ctx); id != "" {
		return id
	}
	return "unknown"
}

// turnErrorStatus maps HandleTurn errors to an HTTP status and error code.
func turnErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, conversation.ErrInvalidTurn):
		return http.StatusBadRequest, response.ErrCodeValidationFailed
	case errors.Is(err, conversation.ErrEngineClosed):
		return http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable
	case lane.IsLaneFullError(err):
		return http.StatusTooManyRequests, response.ErrCodeTooManyRequests
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, response.ErrCodeGatewayTimeout
	default:
		return http.StatusInternalServerError, response.ErrCodeInternalServer
	}
}

func turnErrorMessage(status int, err error) string {
	switch status {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusServiceUnavailable:
		return "Service is shutting down"
	case http.StatusTooManyRequests:
		return "Too many pending turns for this session"
	case http.StatusGatewayTimeout:
		return "Turn timed out"
	default:
		return "Failed to process turn"
	}
}
