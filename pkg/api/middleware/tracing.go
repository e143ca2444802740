package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const httpTracerName = "vitrine.http"

// attrSessionID matches the key on the engine's turn spans.
const (
	attrSessionID = "session.id"
	attrRequestID = "request.id"
)

// TracingOptions defines HTTP tracing middleware behavior.
type TracingOptions struct {
	// SkipPaths are endpoints that never get a span.
	SkipPaths map[string]struct{}
}

// DefaultTracingOptions skips the health probes.
func DefaultTracingOptions() TracingOptions {
	skip := make(map[string]struct{}, len(probePaths))
	for p := range probePaths {
		skip[p] = struct{}{}
	}
	return TracingOptions{SkipPaths: skip}
}

// Tracing opens a server span per request, continuing any inbound trace
// context. Once routed, the span is renamed after the route pattern and
// tagged with the session it addressed, so turn spans created by the engine
// hang under "HTTP POST /api/v1/sessions/{sessionID}/turns".
func Tracing(opts TracingOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := opts.SkipPaths[strings.TrimSpace(r.URL.Path)]; skip {
				next.ServeHTTP(w, r)
				return
			}

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := otel.Tracer(httpTracerName).Start(ctx, "HTTP "+r.Method, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			span.SetAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			)
			if id := GetRequestID(r.Context()); id != "" {
				span.SetAttributes(attribute.String(attrRequestID, id))
			}

			rec := newStatusRecorder(w)
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			route := routePattern(r)
			span.SetName("HTTP " + r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", rec.statusCode),
			)
			if id := sessionIDParam(r); id != "" {
				span.SetAttributes(attribute.String(attrSessionID, id))
			}
			recordHTTPSpanStatus(span, rec.statusCode)
		})
	}
}

// routePattern returns the matched chi pattern, or the raw path before
// routing or on a miss.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := strings.TrimSpace(rc.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func recordHTTPSpanStatus(span trace.Span, statusCode int) {
	if statusCode >= http.StatusBadRequest {
		span.SetStatus(otelcodes.Error, http.StatusText(statusCode))
		return
	}
	span.SetStatus(otelcodes.Ok, http.StatusText(statusCode))
}
