package grounding

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vitrine/vitrine/pkg/catalog"
	"github.com/vitrine/vitrine/pkg/logger"
)

const (
	tracerName   = "vitrine.grounding"
	spanGenerate = "turn.generate"
)

// DefaultGenerationTimeout bounds one generation call.
const DefaultGenerationTimeout = 20 * time.Second

// Generator produces raw text for a request. Implementations must not
// assume their output is trusted: the Gate decodes and filters it.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Generation outcomes.
const (
	StatusSkipped   = "skipped"
	StatusOK        = "ok"
	StatusError     = "error"
	StatusMalformed = "malformed"
)

// Input is everything the gate needs for one turn.
type Input struct {
	Query      string
	Locale     string
	Profile    Profile
	Candidates []catalog.Candidate
}

// GroundedItem is a cited product, resolved against the manifest.
type GroundedItem struct {
	Entry
	Reason string `json:"reason,omitempty"`
}

// Verdict is the validated outcome of a turn.
type Verdict struct {
	Manifest Manifest
	Items    []GroundedItem
	Message  string

	// Refine is true when Items is empty and Message is the refine request.
	Refine bool

	// Dropped lists generated ids absent from the manifest.
	Dropped []string

	// Status is the generation outcome; StatusSkipped when the manifest was empty.
	Status   string
	Duration time.Duration
	Err      error
}

// CitedIDs returns the ids of the surviving items.
func (v Verdict) CitedIDs() []string {
	ids := make([]string, len(v.Items))
	for i, it := range v.Items {
		ids[i] = it.ID
	}
	return ids
}

// Gate owns the manifest, the single generation call and the output filter.
type Gate struct {
	gen        Generator
	maxEntries int
	timeout    time.Duration
	log        logger.Logger
	tracer     trace.Tracer
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithMaxEntries caps the manifest below MaxManifestEntries.
func WithMaxEntries(n int) GateOption {
	return func(g *Gate) { g.maxEntries = n }
}

// WithTimeout bounds the generation call.
func WithTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGate creates a gate around gen.
func NewGate(gen Generator, opts ...GateOption) *Gate {
	g := &Gate{
		gen:        gen,
		maxEntries: MaxManifestEntries,
		timeout:    DefaultGenerationTimeout,
		log:        logger.Component("grounding"),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generator returns the wrapped generator.
func (g *Gate) Generator() Generator { return g.gen }

// BuildManifest caps and validates the candidates.
func (g *Gate) BuildManifest(candidates []catalog.Candidate) Manifest {
	return NewManifest(candidates, g.maxEntries)
}

// Respond builds the manifest and, unless it is empty, issues exactly one
// generation call and keeps only the items whose id is in the manifest.
// It never returns an item outside the manifest and never fails: every
// problem degrades to the refine request.
func (g *Gate) Respond(ctx context.Context, in Input) Verdict {
	manifest := g.BuildManifest(in.Candidates)
	if manifest.Empty() {
		return g.Skip(manifest, in.Locale)
	}
	return g.Validate(manifest, in.Locale, g.Generate(ctx, manifest, in))
}

// Skip returns the refine verdict without calling the generator.
func (g *Gate) Skip(manifest Manifest, locale string) Verdict {
	return refine(Verdict{Manifest: manifest, Status: StatusSkipped}, locale)
}

// Generation is the raw result of one generation call.
type Generation struct {
	Raw      string
	Err      error
	Duration time.Duration
}

// Generate issues the single generation call for a non-empty manifest.
func (g *Gate) Generate(ctx context.Context, manifest Manifest, in Input) Generation {
	ctx, span := g.tracer.Start(ctx, spanGenerate, trace.WithAttributes(
		attribute.String("generation.provider", g.gen.Name()),
		attribute.Int("manifest.size", manifest.Len()),
	))
	defer span.End()

	gctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := Request{
		Contract: Contract,
		Query:    in.Query,
		Locale:   in.Locale,
		Profile:  in.Profile,
		Manifest: manifest,
	}

	start := time.Now()
	raw, err := g.gen.Generate(gctx, req)
	gen := Generation{Raw: raw, Err: err, Duration: time.Since(start)}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return gen
}

// Validate decodes raw generator output and filters it against manifest.
func (g *Gate) Validate(manifest Manifest, locale string, gen Generation) Verdict {
	v := Verdict{Manifest: manifest, Duration: gen.Duration}

	if gen.Err != nil {
		v.Status = StatusError
		v.Err = gen.Err
		level := g.log.Warn
		if errors.Is(gen.Err, context.DeadlineExceeded) {
			level = g.log.Info
		}
		level("generation failed", "provider", g.gen.Name(), "error", gen.Err)
		return refine(v, locale)
	}

	out, err := DecodeOutput(gen.Raw)
	if err != nil {
		v.Status = StatusMalformed
		v.Err = err
		g.log.Warn("generation output rejected", "provider", g.gen.Name(), "error", err)
		return refine(v, locale)
	}
	v.Status = StatusOK

	seen := make(map[string]struct{}, len(out.Items))
	for _, it := range out.Items {
		entry, ok := manifest.Lookup(it.ID)
		if !ok {
			v.Dropped = append(v.Dropped, it.ID)
			continue
		}
		if _, dup := seen[entry.ID]; dup {
			continue
		}
		seen[entry.ID] = struct{}{}
		v.Items = append(v.Items, GroundedItem{Entry: entry, Reason: it.Reason})
	}
	if len(v.Dropped) > 0 {
		g.log.Warn("dropped ungrounded ids", "provider", g.gen.Name(), "dropped_ids", v.Dropped)
	}

	if len(v.Items) == 0 {
		return refine(v, locale)
	}

	// Free text from a reply that cited ungrounded ids is not trusted.
	v.Message = out.Message
	if v.Message == "" || len(v.Dropped) > 0 {
		v.Message = IntroMessage(locale)
	}
	for i := range v.Items {
		if mentionsAny(v.Items[i].Reason, v.Dropped) {
			v.Items[i].Reason = ""
		}
	}
	return v
}

// mentionsAny reports whether text contains any of ids, ignoring case.
func mentionsAny(text string, ids []string) bool {
	lower := strings.ToLower(text)
	for _, id := range ids {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" && strings.Contains(lower, id) {
			return true
		}
	}
	return false
}

func refine(v Verdict, locale string) Verdict {
	v.Items = []GroundedItem{}
	v.Message = RefineMessage(locale)
	v.Refine = true
	return v
}
