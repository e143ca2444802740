package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/vitrine/pkg/catalog"
	"github.com/vitrine/vitrine/pkg/catalog/catalogtest"
)

type recordingObserver struct {
	mu      sync.Mutex
	results []string
}

func (o *recordingObserver) ObserveTier(tier, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, tier+":"+result)
}

func newRetriever(fake *catalogtest.Fake, opts ...Option) *Retriever {
	corrector := NewCorrector([]string{"iphone", "drone", "camera", "quadricoptero"}, DefaultCorrectionThreshold)
	return New(DefaultTiers(fake, corrector, DefaultMaxSuggestions), opts...)
}

func TestRetrieve_DirectHitShortCircuits(t *testing.T) {
	fake := catalogtest.New().OnSearch("drone", catalogtest.Products("d", "loja-a", 2)...)
	obs := &recordingObserver{}

	res := newRetriever(fake, WithObserver(obs)).Retrieve(context.Background(), "drone")

	assert.Equal(t, TierDirect, res.Tier)
	assert.Equal(t, "drone", res.Query)
	assert.Len(t, res.Candidates, 2)
	assert.Equal(t, []string{"drone"}, fake.Searches())
	assert.Empty(t, fake.Suggests(), "later tiers must not run")
	assert.Equal(t, []string{"direct:hit"}, obs.results)
}

func TestRetrieve_ReformulatedTier(t *testing.T) {
	// Tier 1 for "drone bom" is empty; suggestions are joined into one query.
	fake := catalogtest.New().
		OnSuggest("drone bom", "drone", "camera", "quadricoptero").
		OnSearch("drone camera quadricoptero", catalogtest.Products("q", "loja-a", 2)...)

	res := newRetriever(fake).Retrieve(context.Background(), "drone bom")

	assert.Equal(t, TierReformulated, res.Tier)
	assert.Equal(t, "drone camera quadricoptero", res.Query)
	assert.Len(t, res.Candidates, 2)
	assert.Equal(t, []string{"drone bom", "drone camera quadricoptero"}, fake.Searches())
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, ResultEmpty, res.Attempts[0].Result)
}

func TestRetrieve_ReformulationUsesAtMostThreeSuggestions(t *testing.T) {
	fake := catalogtest.New().
		OnSuggest("celular", "iphone", "Iphone", "galaxy", "", "redmi", "moto").
		OnSearch("iphone galaxy redmi", catalogtest.Product("c-1", "loja-a"))

	res := newRetriever(fake).Retrieve(context.Background(), "celular")
	assert.Equal(t, "iphone galaxy redmi", res.Query)
}

func TestRetrieve_CorrectedTier(t *testing.T) {
	fake := catalogtest.New().OnSearch("iphone 13", catalogtest.Product("i-1", "loja-a"))

	res := newRetriever(fake).Retrieve(context.Background(), "iphoen 13")

	assert.Equal(t, TierCorrected, res.Tier)
	assert.Equal(t, "iphone 13", res.Query)
	assert.Equal(t, []string{"iphoen 13", "iphone 13"}, fake.Searches())
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, ResultSkipped, res.Attempts[1].Result, "no suggestions means nothing to search")
}

func TestRetrieve_InvalidCandidatesDoNotCount(t *testing.T) {
	invalid := catalog.Candidate{ID: "x", Title: "Sem loja"}
	fake := catalogtest.New().
		OnSearch("drone", invalid).
		OnSuggest("drone", "quadricoptero").
		OnSearch("quadricoptero", catalogtest.Product("q-1", "loja-b"), catalog.Candidate{Title: "sem id", Store: "loja-b"})

	res := newRetriever(fake).Retrieve(context.Background(), "drone")

	assert.Equal(t, TierReformulated, res.Tier)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "q-1", res.Candidates[0].ID)
	assert.Equal(t, 1, res.Attempts[0].Raw)
	assert.Equal(t, 0, res.Attempts[0].Valid)
	assert.Equal(t, 2, res.Attempts[1].Raw)
}

func TestRetrieve_AllTiersEmpty(t *testing.T) {
	fake := catalogtest.New()
	obs := &recordingObserver{}

	res := newRetriever(fake, WithObserver(obs)).Retrieve(context.Background(), "xyzzy")

	assert.True(t, res.Empty())
	assert.Empty(t, res.Tier)
	assert.Equal(t, []string{"direct:empty", "reformulated:skipped", "corrected:skipped"}, obs.results)
}

func TestRetrieve_TransportErrorFallsThrough(t *testing.T) {
	fake := catalogtest.New().
		FailSearch("drone", catalog.ErrUnavailable).
		FailSuggest(errors.New("suggest down"))
	obs := &recordingObserver{}

	res := newRetriever(fake, WithObserver(obs)).Retrieve(context.Background(), "drone")

	assert.True(t, res.Empty())
	assert.Equal(t, []string{"direct:error", "reformulated:error", "corrected:skipped"}, obs.results)
	assert.Contains(t, res.Attempts[0].Error, "unavailable")
}

func TestRetrieve_TimeoutIsPerTier(t *testing.T) {
	slow := catalogtest.New().WithDelay(time.Second)
	r := New([]Tier{
		DirectTier(slow),
		{
			Name: "fast",
			Fetch: func(ctx context.Context, term string) (string, []catalog.Candidate, error) {
				return term, []catalog.Candidate{catalogtest.Product("f-1", "loja-a")}, ctx.Err()
			},
		},
	}, WithTierTimeout(20*time.Millisecond))

	start := time.Now()
	res := r.Retrieve(context.Background(), "drone")

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, "fast", res.Tier)
	assert.Equal(t, ResultError, res.Attempts[0].Result)
}

func TestRetrieve_CancelledContextStops(t *testing.T) {
	fake := catalogtest.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newRetriever(fake).Retrieve(ctx, "drone")
	assert.True(t, res.Empty())
	assert.Empty(t, res.Attempts)
	assert.Zero(t, fake.Calls())
}

func TestRetrieve_EmptyTerm(t *testing.T) {
	fake := catalogtest.New()
	res := newRetriever(fake).Retrieve(context.Background(), "  ")

	assert.True(t, res.Empty())
	assert.Zero(t, fake.Calls())
}

func TestJoinSuggestions(t *testing.T) {
	assert.Equal(t, "a b", JoinSuggestions([]string{"A", "a", "b"}, 3))
	assert.Equal(t, "", JoinSuggestions(nil, 3))
	assert.Equal(t, "x", JoinSuggestions([]string{"x", "y"}, 1))
}

func TestRetriever_Tiers(t *testing.T) {
	r := newRetriever(catalogtest.New())
	assert.Equal(t, []string{TierDirect, TierReformulated, TierCorrected}, r.Tiers())
}
