// Package catalog defines the product candidates the conversation engine
// retrieves and the search and suggestion capabilities that produce them.
package catalog

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUnavailable reports a catalog or suggestion backend that could not be reached.
	ErrUnavailable = errors.New("catalog: backend unavailable")
	// ErrBadStatus reports a non-2xx reply from the HTTP catalog.
	ErrBadStatus = errors.New("catalog: unexpected status")
	// ErrEmptyTerm is returned when a search is issued for a blank term.
	ErrEmptyTerm = errors.New("catalog: empty term")
)

// Candidate is a raw product-like record returned by a catalog search.
type Candidate struct {
	ID        string  `json:"id" yaml:"id"`
	Title     string  `json:"title" yaml:"title"`
	Category  string  `json:"category,omitempty" yaml:"category"`
	Store     string  `json:"store" yaml:"store"`
	StoreSlug string  `json:"store_slug,omitempty" yaml:"store_slug"`
	Price     float64 `json:"price" yaml:"price"`
	ImageURL  string  `json:"image_url,omitempty" yaml:"image_url"`
	URL       string  `json:"url,omitempty" yaml:"url"`
}

// Valid reports whether the candidate carries an id, a title and a store.
func (c Candidate) Valid() bool {
	return strings.TrimSpace(c.ID) != "" &&
		strings.TrimSpace(c.Title) != "" &&
		strings.TrimSpace(c.Store) != ""
}

// StoreKey identifies the candidate's store for diversity accounting.
// The slug wins over the display name when both are present.
func (c Candidate) StoreKey() string {
	if slug := strings.TrimSpace(c.StoreSlug); slug != "" {
		return strings.ToLower(slug)
	}
	return strings.ToLower(strings.TrimSpace(c.Store))
}

// FilterValid returns the valid candidates in their original order.
// The input slice is not modified.
func FilterValid(in []Candidate) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if c.Valid() {
			out = append(out, c)
		}
	}
	return out
}

// IndexOf returns the position of the candidate with the given id, or -1.
func IndexOf(list []Candidate, id string) int {
	for i, c := range list {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Searcher returns zero or more candidates for a term.
type Searcher interface {
	Search(ctx context.Context, term string) ([]Candidate, error)
}

// Suggester returns ranked alternate terms for a term.
type Suggester interface {
	Suggest(ctx context.Context, term string) ([]string, error)
}

// Catalog is a backend that offers both capabilities.
type Catalog interface {
	Searcher
	Suggester
}
