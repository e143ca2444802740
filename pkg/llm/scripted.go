package llm

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vitrine/vitrine/pkg/grounding"
	"github.com/vitrine/vitrine/pkg/intent"
)

// scriptedCitations is how many manifest entries the default script cites.
const scriptedCitations = 3

// Reply is one queued scripted answer.
type Reply struct {
	Raw string
	Err error
}

// Scripted is a deterministic generator for development and tests. Queued
// replies are returned in order; once the queue is empty it cites the first
// manifest entries.
type Scripted struct {
	mu       sync.Mutex
	queue    []Reply
	requests []grounding.Request
}

// NewScripted creates a scripted generator with optional queued replies.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{queue: replies}
}

// Name returns "scripted".
func (s *Scripted) Name() string { return ProviderScripted }

// Enqueue appends replies to the script.
func (s *Scripted) Enqueue(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, replies...)
}

// Requests returns the requests seen so far.
func (s *Scripted) Requests() []grounding.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]grounding.Request(nil), s.requests...)
}

// Calls returns the number of Generate calls.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Generate returns the next queued reply or the default citation answer.
func (s *Scripted) Generate(ctx context.Context, req grounding.Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	var next *Reply
	if len(s.queue) > 0 {
		r := s.queue[0]
		s.queue = s.queue[1:]
		next = &r
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if next != nil {
		return next.Raw, next.Err
	}
	return defaultAnswer(req)
}

func defaultAnswer(req grounding.Request) (string, error) {
	entries := req.Manifest.Entries()
	if len(entries) > scriptedCitations {
		entries = entries[:scriptedCitations]
	}
	out := grounding.Output{Items: make([]grounding.Item, 0, len(entries))}
	for _, e := range entries {
		out.Items = append(out.Items, grounding.Item{ID: e.ID, Reason: reasonFor(req.Locale, e)})
	}
	if len(out.Items) == 0 {
		out.Message = grounding.RefineMessage(req.Locale)
	} else {
		out.Message = grounding.IntroMessage(req.Locale)
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func reasonFor(locale string, e grounding.Entry) string {
	if intent.ResolveLocale(locale, "") == intent.LocaleEN {
		return "Available at " + e.Store
	}
	return "Disponível em " + e.Store
}
