package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"
)

// HTTPClient talks to a catalog service over JSON:
//
//	GET {base}/search?q=term  -> {"items": [Candidate...]}
//	GET {base}/suggest?q=term -> {"terms": ["..."]}
type HTTPClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithRateLimit paces outgoing calls. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(h *HTTPClient) {
		if rps <= 0 {
			h.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		h.timeout = d
	}
}

// NewHTTPClient creates a client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{},
		timeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type searchResponse struct {
	Items []Candidate `json:"items"`
}

type suggestResponse struct {
	Terms []string `json:"terms"`
}

// Search implements Searcher.
func (h *HTTPClient) Search(ctx context.Context, term string) ([]Candidate, error) {
	if strings.TrimSpace(term) == "" {
		return nil, ErrEmptyTerm
	}
	var out searchResponse
	if err := h.get(ctx, "/search", term, &out); err != nil {
		return nil, fmt.Errorf("catalog: search %q: %w", term, err)
	}
	return out.Items, nil
}

// Suggest implements Suggester.
func (h *HTTPClient) Suggest(ctx context.Context, term string) ([]string, error) {
	if strings.TrimSpace(term) == "" {
		return nil, ErrEmptyTerm
	}
	var out suggestResponse
	if err := h.get(ctx, "/suggest", term, &out); err != nil {
		return nil, fmt.Errorf("catalog: suggest %q: %w", term, err)
	}
	return out.Terms, nil
}

func (h *HTTPClient) get(ctx context.Context, path, term string, dst any) error {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limit: %v", ErrUnavailable, err)
		}
	}

	endpoint := h.baseURL + path + "?" + url.Values{"q": {term}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	res, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("%w %d: %s", ErrBadStatus, res.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
