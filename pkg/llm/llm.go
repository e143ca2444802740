// Package llm provides the generation backends behind the grounding gate.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/vitrine/vitrine/config"
	"github.com/vitrine/vitrine/pkg/grounding"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderScripted  = "scripted"
)

var (
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("llm: unknown provider")

	// ErrEmptyResponse is returned when a provider answers without text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// New builds the generator selected by cfg, rate limited when cfg.RateLimit > 0.
func New(cfg config.GenerationConfig) (grounding.Generator, error) {
	var gen grounding.Generator
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		gen = NewOpenAI(cfg)
	case ProviderAnthropic:
		gen = NewAnthropic(cfg)
	case ProviderScripted, "":
		gen = NewScripted()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if cfg.RateLimit > 0 {
		gen = NewRateLimited(gen, cfg.RateLimit, 1)
	}
	return gen, nil
}

// RateLimited delays generation calls to a sustained rate. A call waits for a
// token until its context ends.
type RateLimited struct {
	next    grounding.Generator
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket of perSecond and burst.
func NewRateLimited(next grounding.Generator, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Name returns the wrapped generator name.
func (r *RateLimited) Name() string { return r.next.Name() }

// Unwrap returns the wrapped generator.
func (r *RateLimited) Unwrap() grounding.Generator { return r.next }

// Generate waits for the limiter, then delegates.
func (r *RateLimited) Generate(ctx context.Context, req grounding.Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: rate limit: %w", err)
	}
	return r.next.Generate(ctx, req)
}

func modelOr(model, fallback string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return fallback
}
