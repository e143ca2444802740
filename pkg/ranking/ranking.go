// Package ranking turns valid candidates into a bounded, store-balanced window.
package ranking

import "github.com/vitrine/vitrine/pkg/catalog"

// Defaults for the ranked window.
const (
	DefaultTopN        = 8
	DefaultTopK        = 3
	DefaultPerStoreCap = 2
)

// Ranked is the ranker output. All slices are fresh copies.
type Ranked struct {
	// Top is the first TopK entries of Window.
	Top []catalog.Candidate
	// Window is the diversity-capped, backfilled first TopN entries.
	Window []catalog.Candidate
	// All is the complete valid set in incoming order.
	All []catalog.Candidate

	// Stores is the number of distinct stores in All.
	Stores int
	// PerStoreCap is the cap that was applied.
	PerStoreCap int
	// Backfilled counts Window entries admitted past the cap.
	Backfilled int
}

// Ranker applies the per-store cap.
type Ranker struct {
	topN        int
	topK        int
	perStoreCap int
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithTopN sets the window size.
func WithTopN(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.topN = n
		}
	}
}

// WithTopK sets the headline size.
func WithTopK(k int) Option {
	return func(r *Ranker) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithPerStoreCap sets the cap used when two or more stores are present.
func WithPerStoreCap(c int) Option {
	return func(r *Ranker) {
		if c > 0 {
			r.perStoreCap = c
		}
	}
}

// New creates a Ranker with the 3/8/2 defaults.
func New(opts ...Option) *Ranker {
	r := &Ranker{topN: DefaultTopN, topK: DefaultTopK, perStoreCap: DefaultPerStoreCap}
	for _, opt := range opts {
		opt(r)
	}
	if r.topK > r.topN {
		r.topK = r.topN
	}
	return r
}

// TopN returns the window size.
func (r *Ranker) TopN() int { return r.topN }

// Rank walks candidates in relevance order. With one distinct store the cap
// is the window size; otherwise each store is admitted up to the per-store
// cap. If the window is still short, the skipped candidates fill it in
// order, ignoring the cap. Invalid and repeated ids are dropped first.
func (r *Ranker) Rank(candidates []catalog.Candidate) Ranked {
	all := dedupValid(candidates)
	stores := distinctStores(all)

	limit := r.perStoreCap
	if stores <= 1 {
		limit = r.topN
	}

	window := make([]catalog.Candidate, 0, min(r.topN, len(all)))
	perStore := make(map[string]int, stores)
	var skipped []catalog.Candidate
	for _, c := range all {
		if len(window) == r.topN {
			break
		}
		key := c.StoreKey()
		if perStore[key] < limit {
			perStore[key]++
			window = append(window, c)
			continue
		}
		skipped = append(skipped, c)
	}

	backfilled := 0
	if len(window) < r.topN {
		for _, c := range skipped {
			if len(window) == r.topN {
				break
			}
			window = append(window, c)
			backfilled++
		}
	}

	return Ranked{
		Top:         append([]catalog.Candidate(nil), window[:min(r.topK, len(window))]...),
		Window:      window,
		All:         all,
		Stores:      stores,
		PerStoreCap: limit,
		Backfilled:  backfilled,
	}
}

// Merge puts fresh results first and appends seed entries whose id is not
// already present.
func Merge(fresh, seed []catalog.Candidate) []catalog.Candidate {
	out := make([]catalog.Candidate, 0, len(fresh)+len(seed))
	seen := make(map[string]struct{}, len(fresh)+len(seed))
	for _, list := range [][]catalog.Candidate{fresh, seed} {
		for _, c := range list {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

func dedupValid(in []catalog.Candidate) []catalog.Candidate {
	out := make([]catalog.Candidate, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range catalog.FilterValid(in) {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

func distinctStores(in []catalog.Candidate) int {
	stores := make(map[string]struct{})
	for _, c := range in {
		stores[c.StoreKey()] = struct{}{}
	}
	return len(stores)
}
