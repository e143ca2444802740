// Package resolver decides, for one utterance, whether the turn is small
// talk, a reference to the focused product, or a fresh retrieval.
package resolver

import (
	"strings"

	"github.com/vitrine/vitrine/pkg/catalog"
	"github.com/vitrine/vitrine/pkg/intent"
	"github.com/vitrine/vitrine/pkg/memory"
)

// Route is the path a turn takes after classification.
type Route string

const (
	// RouteSmalltalk answers without retrieval or generation.
	RouteSmalltalk Route = "smalltalk"
	// RouteFocus reuses the focused product and skips retrieval.
	RouteFocus Route = "focus"
	// RouteRetrieve runs the retrieval tiers.
	RouteRetrieve Route = "retrieve"
)

const (
	// DefaultCarryOver is how many prior candidates seed a retrieval turn.
	DefaultCarryOver = 3
	// focusCompanions is how many other shown entries accompany the focus.
	focusCompanions = 2
)

// Resolution is the outcome of resolving one utterance.
type Resolution struct {
	Route          Route
	Classification intent.Classification

	// Term is the retrieval term. On the focus route it is the previous query.
	Term string

	// Category is the category inferred from the utterance, or the previous
	// one on the focus route.
	Category string

	// Focus is set on the focus route.
	Focus *catalog.Candidate

	// Seed holds the focus and its companions on the focus route, or the
	// carried-over candidates on the retrieve route.
	Seed []catalog.Candidate

	// CategoryMismatch reports that prior candidates and focus were dropped
	// because the utterance names a different category.
	CategoryMismatch bool
}

// Resolver classifies utterances against session memory. It is stateless
// and safe for concurrent use.
type Resolver struct {
	patterns   *intent.PatternTable
	categories *intent.CategoryTable
	carryOver  int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPatterns replaces the pattern table.
func WithPatterns(t *intent.PatternTable) Option {
	return func(r *Resolver) { r.patterns = t }
}

// WithCategories replaces the category table.
func WithCategories(t *intent.CategoryTable) Option {
	return func(r *Resolver) { r.categories = t }
}

// WithCarryOver sets how many prior candidates may seed a retrieval turn.
func WithCarryOver(n int) Option {
	return func(r *Resolver) {
		if n >= 0 {
			r.carryOver = n
		}
	}
}

// New creates a Resolver with the default pt/en tables.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		patterns:   intent.DefaultPatterns(),
		categories: intent.DefaultCategories(),
		carryOver:  DefaultCarryOver,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Categories returns the category table in use.
func (r *Resolver) Categories() *intent.CategoryTable {
	return r.categories
}

// Resolve classifies utterance. mem may be nil for a session without state.
func (r *Resolver) Resolve(utterance string, mem *memory.ConversationMemory) Resolution {
	if mem == nil {
		mem = &memory.ConversationMemory{}
	}
	cls := r.patterns.Classify(utterance)
	res := Resolution{Classification: cls}

	text := utterance
	if cls.Has(intent.Personal) {
		residual := r.patterns.Strip(utterance, intent.Personal)
		if !hasContent(residual) && r.categories.InferCategory(residual) == "" {
			res.Route = RouteSmalltalk
			return res
		}
		// A greeting followed by a request: the greeting is dropped and
		// deixis stays suppressed.
		text = residual
	}

	res.Category = r.categories.InferCategory(text)

	if cls.Referential() {
		if focus, ok := mem.Focus(); ok {
			prior := priorCategory(mem, focus)
			if res.Category == "" || prior == "" || intent.SameCategory(res.Category, prior) {
				res.Route = RouteFocus
				res.Term = mem.LastQuery
				res.Category = prior
				res.Focus = &focus
				res.Seed = focusSeed(focus, mem.LastShown)
				return res
			}
			res.CategoryMismatch = true
		}
	}
	// Referential phrases never belong in a search term, suppressed or not.
	for _, name := range []string{intent.Deictic, intent.Evaluative} {
		if _, ok := cls.Phrases[name]; ok {
			text = r.patterns.Strip(text, name)
		}
	}

	res.Route = RouteRetrieve
	res.Term = searchTerm(text)
	if res.Term == "" {
		// "e esse?" with nothing focused: fall back to the previous query.
		res.Term = mem.LastQuery
	}

	if len(mem.LastShown) == 0 || res.CategoryMismatch {
		return res
	}
	if res.Category != "" && !intent.SameCategory(res.Category, mem.LastCategory) {
		res.CategoryMismatch = true
		return res
	}
	n := r.carryOver
	if n > len(mem.LastShown) {
		n = len(mem.LastShown)
	}
	res.Seed = append([]catalog.Candidate(nil), mem.LastShown[:n]...)
	return res
}

func priorCategory(mem *memory.ConversationMemory, focus catalog.Candidate) string {
	if mem.LastCategory != "" {
		return mem.LastCategory
	}
	return focus.Category
}

func focusSeed(focus catalog.Candidate, shown []catalog.Candidate) []catalog.Candidate {
	seed := []catalog.Candidate{focus}
	for _, c := range shown {
		if len(seed) > focusCompanions {
			break
		}
		if c.ID != focus.ID {
			seed = append(seed, c)
		}
	}
	return seed
}

func hasContent(text string) bool {
	for _, tok := range intent.Tokens(text) {
		if !intent.IsStopword(tok) {
			return true
		}
	}
	return false
}

// searchTerm is intent.Term without its all-stopwords fallback.
func searchTerm(text string) string {
	if !hasContent(text) {
		return ""
	}
	return strings.TrimSpace(intent.Term(text))
}
