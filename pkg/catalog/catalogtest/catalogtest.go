// Package catalogtest provides a scriptable catalog for tests.
package catalogtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitrine/vitrine/pkg/catalog"
)

// Fake answers searches and suggestions from scripted tables and records
// every call it receives. Unscripted terms return no results.
type Fake struct {
	mu          sync.Mutex
	results     map[string][]catalog.Candidate
	searchErr   map[string]error
	suggestions map[string][]string
	suggestErr  error
	delay       time.Duration
	searches    []string
	suggests    []string
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		results:     make(map[string][]catalog.Candidate),
		searchErr:   make(map[string]error),
		suggestions: make(map[string][]string),
	}
}

// OnSearch scripts the results for term.
func (f *Fake) OnSearch(term string, items ...catalog.Candidate) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[term] = append([]catalog.Candidate(nil), items...)
	return f
}

// FailSearch makes searches for term return err.
func (f *Fake) FailSearch(term string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchErr[term] = err
	return f
}

// OnSuggest scripts the alternates for term.
func (f *Fake) OnSuggest(term string, alts ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions[term] = append([]string(nil), alts...)
	return f
}

// FailSuggest makes every suggestion call return err.
func (f *Fake) FailSuggest(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestErr = err
	return f
}

// WithDelay makes every call block for d or until the context ends.
func (f *Fake) WithDelay(d time.Duration) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

func (f *Fake) wait(ctx context.Context) error {
	f.mu.Lock()
	d := f.delay
	f.mu.Unlock()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Search implements catalog.Searcher.
func (f *Fake) Search(ctx context.Context, term string) ([]catalog.Candidate, error) {
	f.mu.Lock()
	f.searches = append(f.searches, term)
	items := append([]catalog.Candidate(nil), f.results[term]...)
	err := f.searchErr[term]
	f.mu.Unlock()

	if werr := f.wait(ctx); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Suggest implements catalog.Suggester.
func (f *Fake) Suggest(ctx context.Context, term string) ([]string, error) {
	f.mu.Lock()
	f.suggests = append(f.suggests, term)
	alts := append([]string(nil), f.suggestions[term]...)
	err := f.suggestErr
	f.mu.Unlock()

	if werr := f.wait(ctx); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	return alts, nil
}

// Searches returns the terms searched so far, in order.
func (f *Fake) Searches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

// Suggests returns the terms sent to Suggest so far, in order.
func (f *Fake) Suggests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.suggests...)
}

// Calls is the total number of search and suggest calls.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches) + len(f.suggests)
}

// Product builds a valid candidate sold by store.
func Product(id, store string) catalog.Candidate {
	return catalog.Candidate{
		ID:       id,
		Title:    fmt.Sprintf("Produto %s", id),
		Category: "geral",
		Store:    store,
		Price:    99.9,
		ImageURL: fmt.Sprintf("https://img.example.com/%s.jpg", id),
		URL:      fmt.Sprintf("https://vitrine.example.com/p/%s", id),
	}
}

// Products builds n valid candidates for store with ids prefix-1..prefix-n.
func Products(prefix, store string, n int) []catalog.Candidate {
	out := make([]catalog.Candidate, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Product(fmt.Sprintf("%s-%d", prefix, i), store))
	}
	return out
}

var (
	_ catalog.Catalog = (*Fake)(nil)
	_ catalog.Catalog = (*catalog.StaticCatalog)(nil)
	_ catalog.Catalog = (*catalog.HTTPClient)(nil)
)
