package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vitrine/vitrine/pkg/intent"
)

// Fixture is the YAML document backing a StaticCatalog.
type Fixture struct {
	Products    []Candidate         `yaml:"products"`
	Suggestions map[string][]string `yaml:"suggestions"`
}

// StaticCatalog serves search and suggestions from an in-memory fixture.
// It is read-only after construction and safe for concurrent use.
type StaticCatalog struct {
	products    []indexedProduct
	suggestions map[string][]string
}

type indexedProduct struct {
	candidate Candidate
	tokens    []string
}

// LoadStatic reads a YAML fixture from path.
func LoadStatic(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read fixture: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic builds a StaticCatalog from YAML bytes.
func ParseStatic(data []byte) (*StaticCatalog, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("catalog: parse fixture: %w", err)
	}
	return NewStatic(fx), nil
}

// NewStatic indexes a fixture. Invalid products are kept so that the
// validity gate downstream has something to reject.
func NewStatic(fx Fixture) *StaticCatalog {
	s := &StaticCatalog{
		products:    make([]indexedProduct, 0, len(fx.Products)),
		suggestions: make(map[string][]string, len(fx.Suggestions)),
	}
	for _, p := range fx.Products {
		s.products = append(s.products, indexedProduct{
			candidate: p,
			tokens:    intent.Tokens(p.Title + " " + p.Category),
		})
	}
	for term, alts := range fx.Suggestions {
		s.suggestions[intent.Normalize(term)] = append([]string(nil), alts...)
	}
	return s
}

// Len returns the number of products in the fixture.
func (s *StaticCatalog) Len() int {
	return len(s.products)
}

// Search returns products whose title or category covers every query token,
// in fixture order. A query token covers a product token it prefixes, so
// "drone" finds "drones".
func (s *StaticCatalog) Search(ctx context.Context, term string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := queryTokens(term)
	if len(query) == 0 {
		return nil, ErrEmptyTerm
	}

	var out []Candidate
	for _, p := range s.products {
		if covers(p.tokens, query) {
			out = append(out, p.candidate)
		}
	}
	return out, nil
}

// Suggest returns alternates for the whole term, then for each token, then
// the categories of products sharing any token with the term.
func (s *StaticCatalog) Suggest(ctx context.Context, term string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	norm := intent.Normalize(term)
	if norm == "" {
		return nil, ErrEmptyTerm
	}

	seen := make(map[string]bool)
	var out []string
	add := func(terms ...string) {
		for _, t := range terms {
			n := intent.Normalize(t)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}

	add(s.suggestions[norm]...)
	for _, tok := range strings.Fields(norm) {
		add(s.suggestions[tok]...)
	}
	if len(out) > 0 {
		return out, nil
	}

	query := queryTokens(term)
	for _, p := range s.products {
		for _, q := range query {
			if covers(p.tokens, []string{q}) {
				add(p.candidate.Category)
				break
			}
		}
	}
	return out, nil
}

func queryTokens(term string) []string {
	var out []string
	for _, tok := range intent.Tokens(term) {
		if !intent.IsStopword(tok) {
			out = append(out, tok)
		}
	}
	return out
}

func covers(tokens, query []string) bool {
	for _, q := range query {
		found := false
		for _, t := range tokens {
			if strings.HasPrefix(t, q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
