// Package conversation runs one turn of a grounded shopping conversation:
// classify, resolve focus or retrieve, rank, build the manifest, generate
// once and validate the answer against the manifest.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vitrine/vitrine/pkg/catalog"
	"github.com/vitrine/vitrine/pkg/grounding"
	"github.com/vitrine/vitrine/pkg/intent"
	"github.com/vitrine/vitrine/pkg/lane"
	"github.com/vitrine/vitrine/pkg/logger"
	"github.com/vitrine/vitrine/pkg/memory"
	"github.com/vitrine/vitrine/pkg/ranking"
	"github.com/vitrine/vitrine/pkg/resolver"
	"github.com/vitrine/vitrine/pkg/retrieval"
	"github.com/vitrine/vitrine/pkg/storage"
)

const (
	tracerName      = "vitrine.conversation"
	spanTurn        = "turn"
	spanClassify    = "turn.classify"
	spanRank        = "turn.rank"
	sessionLane     = "sessions"
	laneCapacity    = 16
	signalSearch    = "search"
	signalFocus     = "focus"
	signalRefine    = "refine"
	signalSmalltalk = "smalltalk"
)

// Frame relevance written after an answered turn.
const (
	focusRelevance    = 0.9
	queryRelevance    = 0.6
	categoryRelevance = 0.5
)

// MetricsRecorder is the subset of the metrics manager the engine reports to.
type MetricsRecorder interface {
	RecordTurn(ctx context.Context, path, outcome string, duration time.Duration)
	SetSessionsActive(n int)
	ObserveManifest(size int)
	AddDroppedIDs(n int)
	ObserveGeneration(provider, status string, duration time.Duration)
}

// Engine runs turns. Turns of one session are sequenced; different sessions
// run in parallel.
type Engine struct {
	store     memory.Store
	resolver  *resolver.Resolver
	retriever *retrieval.Retriever
	ranker    *ranking.Ranker
	gate      *grounding.Gate
	lane      *lane.KeyedLane

	metrics   MetricsRecorder
	observers []Observer
	log       logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string

	closed atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver replaces the default resolver.
func WithResolver(r *resolver.Resolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// WithRanker replaces the default ranker.
func WithRanker(r *ranking.Ranker) Option {
	return func(e *Engine) {
		if r != nil {
			e.ranker = r
		}
	}
}

// WithLane sets the per-session lane.
func WithLane(l *lane.KeyedLane) Option {
	return func(e *Engine) {
		if l != nil {
			e.lane = l
		}
	}
}

// WithMetrics sets the metrics recorder for the engine.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithObserver adds a turn observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides turn id generation.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) {
		if f != nil {
			e.newID = f
		}
	}
}

// New creates an engine. store, retriever and gate are required.
func New(store memory.Store, retriever *retrieval.Retriever, gate *grounding.Gate, opts ...Option) (*Engine, error) {
	if store == nil || retriever == nil || gate == nil {
		return nil, fmt.Errorf("conversation: store, retriever and gate are required")
	}
	e := &Engine{
		store:     store,
		resolver:  resolver.New(),
		retriever: retriever,
		ranker:    ranking.New(),
		gate:      gate,
		metrics:   nopMetrics{},
		log:       logger.Component("conversation"),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.lane == nil {
		l, err := lane.NewKeyed(&lane.Config{Name: sessionLane, Capacity: laneCapacity})
		if err != nil {
			return nil, err
		}
		e.lane = l
	}
	return e, nil
}

// HandleTurn runs one turn. It fails only for invalid input, a closed engine,
// a full session lane or a cancelled context; every retrieval or generation
// problem ends in a refine response instead.
func (e *Engine) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Utterance = strings.TrimSpace(req.Utterance)
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidTurn)
	}
	if req.Utterance == "" {
		return nil, fmt.Errorf("%w: utterance is required", ErrInvalidTurn)
	}
	if utf8.RuneCountInString(req.Utterance) > MaxUtteranceLength {
		return nil, fmt.Errorf("%w: utterance exceeds %d characters", ErrInvalidTurn, MaxUtteranceLength)
	}
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	var resp *TurnResponse
	var outcome TurnOutcome
	err := e.lane.Do(ctx, req.SessionID, func(ctx context.Context) error {
		e.metrics.SetSessionsActive(e.lane.Stats().Keys)
		resp, outcome = e.runTurn(ctx, req)
		return nil
	})
	e.metrics.SetSessionsActive(e.lane.Stats().Keys)
	if err != nil {
		if lane.IsLaneClosedError(err) {
			return nil, ErrEngineClosed
		}
		return nil, err
	}

	e.notify(outcome)
	return resp, nil
}

func (e *Engine) runTurn(ctx context.Context, req TurnRequest) (*TurnResponse, TurnOutcome) {
	start := e.now()
	turnID := e.newID()
	ctx = logger.ContextWithTurn(ctx, req.SessionID, turnID)
	ctx, span := e.tracer.Start(ctx, spanTurn, trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.String("turn.id", turnID),
	))
	defer span.End()

	t := newTrail()
	mem := e.loadMemory(ctx, req.SessionID)
	locale := intent.ResolveLocale(req.Locale, req.Utterance)

	t.advance(StateClassify)
	res := e.classify(ctx, req.Utterance, mem)

	resp := &TurnResponse{
		SessionID: req.SessionID,
		TurnID:    turnID,
		Route:     res.Route,
		Locale:    locale,
		Items:     []grounding.GroundedItem{},
	}
	outcome := TurnOutcome{Request: req, CategoryMismatch: res.CategoryMismatch, SeedSize: len(res.Seed)}

	e.remember(ctx, "append user message", func() error {
		_, err := e.store.AppendMessage(ctx, req.SessionID, memory.RoleUser, req.Utterance,
			memory.MessageMeta{Intent: string(res.Route)})
		return err
	})
	focusID := mem.CurrentFocusID
	if res.CategoryMismatch && focusID != "" {
		focusID = ""
		e.remember(ctx, "clear focus", func() error { return e.store.SetFocus(ctx, req.SessionID, "") })
	}

	if res.Route == resolver.RouteSmalltalk {
		t.advance(StateRespond)
		resp.Outcome = OutcomeSmalltalk
		resp.Message = grounding.SmalltalkMessage(locale)
		resp.FocusID = focusID
		e.finish(ctx, t, resp, start, signalSmalltalk, "")
		outcome.Response = resp.clone()
		return resp, outcome
	}

	var candidates []catalog.Candidate
	if res.Route == resolver.RouteFocus {
		t.advance(StateFocusShortcut)
		candidates = res.Seed
		resp.Query = res.Term
	} else {
		t.advance(StateRetrieve)
		result := e.retriever.Retrieve(ctx, res.Term)
		candidates = ranking.Merge(result.Candidates, res.Seed)
		resp.Query = result.Query
		if resp.Query == "" {
			resp.Query = res.Term
		}
		resp.Tier = result.Tier
		outcome.TierAttempts = len(result.Attempts)
	}

	t.advance(StateRank)
	ranked := e.rank(ctx, candidates)

	t.advance(StateBuildManifest)
	manifest := e.gate.BuildManifest(ranked.Window)
	e.metrics.ObserveManifest(manifest.Len())
	outcome.ManifestIDs = manifest.IDs()

	var verdict grounding.Verdict
	if manifest.Empty() {
		verdict = e.gate.Skip(manifest, locale)
	} else {
		t.advance(StateGenerate)
		gen := e.gate.Generate(ctx, manifest, grounding.Input{
			Query:   req.Utterance,
			Locale:  locale,
			Profile: grounding.Profile{Interests: mem.Profile.Interests, PreferredCategories: mem.Profile.PreferredCategories},
		})
		t.advance(StateValidate)
		verdict = e.gate.Validate(manifest, locale, gen)
		e.metrics.ObserveGeneration(e.gate.Generator().Name(), verdict.Status, verdict.Duration)
		e.metrics.AddDroppedIDs(len(verdict.Dropped))
	}
	outcome.DroppedIDs = verdict.Dropped
	outcome.GenerationStatus = verdict.Status
	outcome.GenerationError = verdict.Err

	resp.Message = verdict.Message
	resp.Items = verdict.Items
	resp.Refine = verdict.Refine
	resp.FocusID = focusID

	signal := signalSearch
	if res.Route == resolver.RouteFocus {
		signal = signalFocus
	}
	if verdict.Refine {
		t.advance(StateRespondRefine)
		resp.Outcome = OutcomeRefine
		signal = signalRefine
	} else {
		t.advance(StateRespond)
		resp.Outcome = OutcomeAnswered
		resp.FocusID = nextFocus(res, verdict)
		e.rememberAnswer(ctx, req.SessionID, res, resp, ranked.Window)
	}

	e.finish(ctx, t, resp, start, signal, resp.Query)
	outcome.Response = resp.clone()
	return resp, outcome
}

func (e *Engine) classify(ctx context.Context, utterance string, mem *memory.ConversationMemory) resolver.Resolution {
	_, span := e.tracer.Start(ctx, spanClassify)
	defer span.End()

	res := e.resolver.Resolve(utterance, mem)
	span.SetAttributes(
		attribute.String("turn.route", string(res.Route)),
		attribute.String("turn.category", res.Category),
		attribute.Bool("turn.category_mismatch", res.CategoryMismatch),
		attribute.Int("turn.seed", len(res.Seed)),
	)
	e.log.DebugContext(ctx, "turn classified",
		"route", res.Route,
		"term", res.Term,
		"category", res.Category,
		"matched", res.Classification.Matched,
		"suppressed", res.Classification.Suppressed,
	)
	return res
}

func (e *Engine) rank(ctx context.Context, candidates []catalog.Candidate) ranking.Ranked {
	_, span := e.tracer.Start(ctx, spanRank)
	defer span.End()

	ranked := e.ranker.Rank(candidates)
	span.SetAttributes(
		attribute.Int("rank.input", len(candidates)),
		attribute.Int("rank.window", len(ranked.Window)),
		attribute.Int("rank.stores", ranked.Stores),
		attribute.Int("rank.per_store_cap", ranked.PerStoreCap),
		attribute.Int("rank.backfilled", ranked.Backfilled),
	)
	return ranked
}

// nextFocus picks the focus after an answered turn. A follow-up about the
// focused product never moves it, whichever item the reply lists first.
func nextFocus(res resolver.Resolution, verdict grounding.Verdict) string {
	if res.Route == resolver.RouteFocus && res.Focus != nil && verdict.Manifest.Contains(res.Focus.ID) {
		return res.Focus.ID
	}
	return verdict.Items[0].ID
}

// rememberAnswer replaces the shown set and focus and records what the turn
// taught about the user.
func (e *Engine) rememberAnswer(ctx context.Context, sessionID string, res resolver.Resolution, resp *TurnResponse, shown []catalog.Candidate) {
	category := res.Category
	if category == "" && res.Focus != nil {
		category = res.Focus.Category
	}

	e.remember(ctx, "record shown", func() error {
		return e.store.RecordShown(ctx, sessionID, memory.Shown{Query: res.Term, Category: category, Candidates: shown})
	})
	e.remember(ctx, "set focus", func() error { return e.store.SetFocus(ctx, sessionID, resp.FocusID) })

	frames := []memory.ContextFrame{
		{Type: memory.FrameFocus, Payload: map[string]string{"id": resp.FocusID}, Relevance: focusRelevance},
	}
	if res.Term != "" {
		frames = append(frames, memory.ContextFrame{
			Type:      memory.FrameQuery,
			Payload:   map[string]string{"term": res.Term, "tier": resp.Tier},
			Relevance: queryRelevance,
		})
	}
	if category != "" {
		frames = append(frames, memory.ContextFrame{
			Type:      memory.FrameCategory,
			Payload:   map[string]string{"category": category},
			Relevance: categoryRelevance,
		})
	}
	for _, f := range frames {
		e.remember(ctx, "push context", func() error { return e.store.PushContext(ctx, sessionID, f) })
	}

	var partial memory.UserProfile
	if res.Term != "" && res.Route == resolver.RouteRetrieve {
		partial.Interests = []string{res.Term}
	}
	if category != "" {
		partial.PreferredCategories = []string{category}
	}
	if len(partial.Interests) > 0 || len(partial.PreferredCategories) > 0 {
		e.remember(ctx, "merge profile", func() error { return e.store.MergeProfile(ctx, sessionID, partial) })
	}
}

func (e *Engine) finish(ctx context.Context, t *trail, resp *TurnResponse, start time.Time, signal, value string) {
	e.remember(ctx, "append assistant message", func() error {
		_, err := e.store.AppendMessage(ctx, resp.SessionID, memory.RoleAssistant, resp.Message,
			memory.MessageMeta{Intent: resp.Outcome})
		return err
	})
	e.remember(ctx, "record signal", func() error {
		return e.store.RecordSignal(ctx, resp.SessionID, memory.BehaviorSignal{Type: signal, Value: value})
	})

	resp.States = t.strings()
	resp.Duration = e.now().Sub(start)

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("turn.outcome", resp.Outcome),
		attribute.Int("turn.items", len(resp.Items)),
	)
	e.metrics.RecordTurn(ctx, string(resp.Route), resp.Outcome, resp.Duration)
	e.log.InfoContext(ctx, "turn completed",
		"route", resp.Route,
		"outcome", resp.Outcome,
		"tier", resp.Tier,
		"items", len(resp.Items),
		"duration_ms", resp.Duration.Milliseconds(),
	)
}

// loadMemory never fails the turn: an unreadable session is treated as new.
func (e *Engine) loadMemory(ctx context.Context, sessionID string) *memory.ConversationMemory {
	mem, err := e.store.GetOrCreate(ctx, sessionID)
	if err != nil {
		e.log.WarnContext(ctx, "session memory unavailable, continuing without it", "error", err)
		return &memory.ConversationMemory{SessionID: sessionID}
	}
	return mem
}

func (e *Engine) remember(ctx context.Context, op string, fn func() error) {
	if err := fn(); err != nil {
		e.log.WarnContext(ctx, "session memory update failed", "op", op, "error", err)
	}
}

func (e *Engine) notify(o TurnOutcome) {
	for _, obs := range e.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("turn observer panicked", "panic", r)
				}
			}()
			obs.OnTurn(o)
		}()
	}
}

// Session returns a read-only snapshot of a session.
func (e *Engine) Session(ctx context.Context, sessionID string) (*memory.ConversationMemory, error) {
	return e.store.Snapshot(ctx, sessionID)
}

// Sessions pages the known session ids, most recently active first.
func (e *Engine) Sessions(ctx context.Context, filter *storage.ListFilter) ([]string, int, error) {
	return e.store.List(ctx, filter)
}

// LaneStats reports the per-session lane counters.
func (e *Engine) LaneStats() lane.Stats {
	return e.lane.Stats()
}

// Close stops accepting turns and waits for running ones until ctx ends.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.lane.Close(ctx)
}

type nopMetrics struct{}

func (nopMetrics) RecordTurn(context.Context, string, string, time.Duration) {}
func (nopMetrics) SetSessionsActive(int)                                     {}
func (nopMetrics) ObserveManifest(int)                                       {}
func (nopMetrics) AddDroppedIDs(int)                                         {}
func (nopMetrics) ObserveGeneration(string, string, time.Duration)           {}
