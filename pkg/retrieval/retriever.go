// Package retrieval runs an ordered chain of catalog search strategies and
// stops at the first one that yields a valid candidate.
package retrieval

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vitrine/vitrine/pkg/catalog"
	"github.com/vitrine/vitrine/pkg/logger"
)

const (
	tracerName   = "vitrine.retrieval"
	spanTier     = "retrieval.tier"
	spanRetrieve = "turn.retrieve"
)

// Tier outcomes reported to observers.
const (
	ResultHit     = "hit"
	ResultEmpty   = "empty"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// DefaultTierTimeout bounds one tier when no timeout is configured.
const DefaultTierTimeout = 3 * time.Second

// Observer receives one call per attempted tier.
type Observer interface {
	ObserveTier(tier, result string, duration time.Duration)
}

// Attempt records what one tier did.
type Attempt struct {
	Tier     string        `json:"tier"`
	Query    string        `json:"query,omitempty"`
	Raw      int           `json:"raw"`
	Valid    int           `json:"valid"`
	Result   string        `json:"result"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of a retrieval. Tier is empty when every tier came
// back without valid candidates.
type Result struct {
	Tier       string
	Query      string
	Candidates []catalog.Candidate
	Attempts   []Attempt
}

// Empty reports whether no tier produced a valid candidate.
func (r Result) Empty() bool {
	return len(r.Candidates) == 0
}

// Retriever folds its tiers in order with first-success short-circuit.
type Retriever struct {
	tiers    []Tier
	timeout  time.Duration
	observer Observer
	log      logger.Logger
	tracer   trace.Tracer
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTierTimeout bounds each tier.
func WithTierTimeout(d time.Duration) Option {
	return func(r *Retriever) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithObserver sets the tier observer.
func WithObserver(o Observer) Option {
	return func(r *Retriever) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a Retriever over tiers, tried in the given order.
func New(tiers []Tier, opts ...Option) *Retriever {
	r := &Retriever{
		tiers:    append([]Tier(nil), tiers...),
		timeout:  DefaultTierTimeout,
		observer: nopObserver{},
		log:      logger.Component("retrieval"),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tiers returns the tier names in order.
func (r *Retriever) Tiers() []string {
	names := make([]string, len(r.tiers))
	for i, t := range r.tiers {
		names[i] = t.Name
	}
	return names
}

// Retrieve runs the tiers strictly in sequence. A tier that fails or times
// out counts as empty and the next tier runs. Only a cancelled ctx stops the
// chain early.
func (r *Retriever) Retrieve(ctx context.Context, term string) Result {
	ctx, span := r.tracer.Start(ctx, spanRetrieve, trace.WithAttributes(attribute.String("retrieval.term", term)))
	defer span.End()

	var res Result
	for _, tier := range r.tiers {
		if ctx.Err() != nil {
			break
		}
		attempt, valid := r.runTier(ctx, tier, term)
		res.Attempts = append(res.Attempts, attempt)
		if len(valid) > 0 {
			res.Tier = tier.Name
			res.Query = attempt.Query
			res.Candidates = valid
			break
		}
	}

	span.SetAttributes(
		attribute.String("retrieval.tier", res.Tier),
		attribute.Int("retrieval.candidates", len(res.Candidates)),
	)
	return res
}

func (r *Retriever) runTier(ctx context.Context, tier Tier, term string) (Attempt, []catalog.Candidate) {
	ctx, span := r.tracer.Start(ctx, spanTier, trace.WithAttributes(attribute.String("retrieval.tier", tier.Name)))
	defer span.End()

	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	query, raw, err := tier.Fetch(tctx, term)
	attempt := Attempt{Tier: tier.Name, Query: query, Raw: len(raw), Duration: time.Since(start)}

	var valid []catalog.Candidate
	switch {
	case err != nil:
		attempt.Result = ResultError
		attempt.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		level := r.log.WarnContext
		if errors.Is(err, context.DeadlineExceeded) {
			level = r.log.InfoContext
		}
		level(ctx, "retrieval tier failed", "tier", tier.Name, "query", query, "error", err)
	case query == "":
		attempt.Result = ResultSkipped
	default:
		valid = catalog.FilterValid(raw)
		attempt.Valid = len(valid)
		if len(valid) > 0 {
			attempt.Result = ResultHit
		} else {
			attempt.Result = ResultEmpty
		}
	}

	span.SetAttributes(
		attribute.String("retrieval.query", query),
		attribute.String("retrieval.result", attempt.Result),
		attribute.Int("retrieval.raw", attempt.Raw),
		attribute.Int("retrieval.valid", attempt.Valid),
	)
	r.observer.ObserveTier(tier.Name, attempt.Result, attempt.Duration)
	r.log.DebugContext(ctx, "retrieval tier done",
		"tier", tier.Name,
		"query", query,
		"result", attempt.Result,
		"raw", attempt.Raw,
		"valid", attempt.Valid,
	)
	return attempt, valid
}

type nopObserver struct{}

func (nopObserver) ObserveTier(string, string, time.Duration) {}
