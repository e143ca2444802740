package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/vitrine/vitrine/pkg/catalog"
	"github.com/vitrine/vitrine/pkg/intent"
)

// Tier names.
const (
	TierDirect       = "direct"
	TierReformulated = "reformulated"
	TierCorrected    = "corrected"
)

// DefaultMaxSuggestions is how many alternate terms the reformulation joins.
const DefaultMaxSuggestions = 3

// Tier is one strategy of the fallback chain. Fetch returns the query it
// actually issued and the raw candidates; an empty query means the tier had
// nothing new to try.
type Tier struct {
	Name  string
	Fetch func(ctx context.Context, term string) (query string, raw []catalog.Candidate, err error)
}

// DirectTier searches the catalog with the term as given.
func DirectTier(s catalog.Searcher) Tier {
	return Tier{
		Name: TierDirect,
		Fetch: func(ctx context.Context, term string) (string, []catalog.Candidate, error) {
			if strings.TrimSpace(term) == "" {
				return "", nil, nil
			}
			raw, err := s.Search(ctx, term)
			return term, raw, err
		},
	}
}

// ReformulatedTier asks for up to max suggestions, joins them into one term
// and searches with it.
func ReformulatedTier(s catalog.Searcher, sg catalog.Suggester, max int) Tier {
	if max <= 0 {
		max = DefaultMaxSuggestions
	}
	return Tier{
		Name: TierReformulated,
		Fetch: func(ctx context.Context, term string) (string, []catalog.Candidate, error) {
			if strings.TrimSpace(term) == "" {
				return "", nil, nil
			}
			suggestions, err := sg.Suggest(ctx, term)
			if err != nil {
				return "", nil, fmt.Errorf("suggest: %w", err)
			}
			query := JoinSuggestions(suggestions, max)
			if query == "" || query == intent.Normalize(term) {
				return "", nil, nil
			}
			raw, err := s.Search(ctx, query)
			return query, raw, err
		},
	}
}

// CorrectedTier replaces misspelled tokens and searches again when anything changed.
func CorrectedTier(s catalog.Searcher, c *Corrector) Tier {
	return Tier{
		Name: TierCorrected,
		Fetch: func(ctx context.Context, term string) (string, []catalog.Candidate, error) {
			corrected := c.Correct(term)
			if corrected == "" || corrected == intent.Normalize(term) {
				return "", nil, nil
			}
			raw, err := s.Search(ctx, corrected)
			return corrected, raw, err
		},
	}
}

// JoinSuggestions keeps the first max distinct non-empty suggestions in rank
// order and joins them with spaces.
func JoinSuggestions(suggestions []string, max int) string {
	seen := make(map[string]struct{}, max)
	parts := make([]string, 0, max)
	for _, s := range suggestions {
		if len(parts) == max {
			break
		}
		n := intent.Normalize(s)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		parts = append(parts, n)
	}
	return strings.Join(parts, " ")
}

// DefaultTiers is the direct, reformulated, corrected chain.
func DefaultTiers(c catalog.Catalog, corrector *Corrector, maxSuggestions int) []Tier {
	return []Tier{
		DirectTier(c),
		ReformulatedTier(c, c, maxSuggestions),
		CorrectedTier(c, corrector),
	}
}
