// Package middleware provides HTTP middleware components.
package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vitrine/vitrine/pkg/logger"
)

// sessionParam is the chi route parameter naming the conversation.
const sessionParam = "sessionID"

// probePaths are polled by orchestrators and only logged at debug.
var probePaths = map[string]struct{}{
	"/health": {},
	"/ready":  {},
}

// statusRecorder captures the status and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	size       int
	written    bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.written = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// sessionIDParam returns the session the request addressed. Route params are
// only filled once chi has routed, so call it after next.ServeHTTP.
func sessionIDParam(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.URLParam(sessionParam)
	}
	return ""
}

// Logger writes one line per request. Session routes carry session_id so a
// conversation can be followed across REST turns and its websocket. 5xx is
// logged as an error, 4xx as a warning, and health probes at debug.
func Logger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			args := []any{
				"method", r.Method,
				"route", routePattern(r),
				"path", r.URL.Path,
				"status", rec.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"size", rec.size,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}
			if id := sessionIDParam(r); id != "" {
				args = append(args, logger.SessionIDKey, id)
			}

			ctx := r.Context()
			switch _, probe := probePaths[r.URL.Path]; {
			case probe:
				log.DebugContext(ctx, "HTTP request", args...)
			case rec.statusCode >= http.StatusInternalServerError:
				log.ErrorContext(ctx, "HTTP request", args...)
			case rec.statusCode >= http.StatusBadRequest:
				log.WarnContext(ctx, "HTTP request", args...)
			default:
				log.InfoContext(ctx, "HTTP request", args...)
			}
		})
	}
}
