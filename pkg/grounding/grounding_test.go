package grounding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/vitrine/pkg/catalog"
	"github.com/vitrine/vitrine/pkg/catalog/catalogtest"
	"github.com/vitrine/vitrine/pkg/intent"
)

type fakeGenerator struct {
	mu       sync.Mutex
	reply    func(req Request) (string, error)
	requests []Request
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.reply(req)
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func replyJSON(items []Item, message string) func(Request) (string, error) {
	return func(Request) (string, error) {
		b, err := json.Marshal(Output{Items: items, Message: message})
		return string(b), err
	}
}

func TestNewManifest(t *testing.T) {
	in := append(catalogtest.Products("p", "loja-a", 10),
		catalog.Candidate{ID: "bad", Title: "sem loja"},
	)
	in = append([]catalog.Candidate{in[0]}, in...) // duplicate id first

	m := NewManifest(in, 0)
	assert.Equal(t, MaxManifestEntries, m.Len())
	assert.Equal(t, "p-1", m.IDs()[0])
	assert.Equal(t, "p-8", m.IDs()[7])

	e, ok := m.Lookup(" p-2 ")
	require.True(t, ok)
	assert.Equal(t, "Produto p-2", e.Title)
	assert.Equal(t, "loja-a", e.Store)
	assert.NotEmpty(t, e.Link)
	assert.False(t, m.Contains("bad"))

	assert.Equal(t, 3, NewManifest(in, 3).Len())
	assert.Equal(t, MaxManifestEntries, NewManifest(in, 50).Len())
}

func TestManifest_ZeroValue(t *testing.T) {
	var m Manifest
	assert.True(t, m.Empty())
	assert.False(t, m.Contains("x"))
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))
}

func TestDecodeOutput(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		items   int
	}{
		{"valid", `{"items":[{"id":"p-1","reason":"barato"}],"message":"ok"}`, false, 1},
		{"fenced", "```json\n{\"items\":[],\"message\":\"nada\"}\n```", false, 0},
		{"unknown top-level field", `{"items":[{"id":"p-1"}],"message":"ok","extra":true}`, true, 0},
		{"unknown item field", `{"items":[{"id":"p-1","reason":"x","product":"iPhone 15"}],"message":"ok"}`, true, 0},
		{"reason optional", `{"items":[{"id":"p-1"}],"message":"ok"}`, false, 1},
		{"empty", ``, true, 0},
		{"prose", `Claro! Recomendo o produto p-1.`, true, 0},
		{"missing items", `{"message":"ok"}`, true, 0},
		{"missing message", `{"items":[]}`, true, 0},
		{"items not array", `{"items":{"id":"p-1"},"message":"ok"}`, true, 0},
		{"numeric id", `{"items":[{"id":1}],"message":"ok"}`, true, 0},
		{"blank id", `{"items":[{"id":"  "}],"message":"ok"}`, true, 0},
		{"trailing object", `{"items":[],"message":"a"}{"items":[],"message":"b"}`, true, 0},
		{"null items", `{"items":null,"message":"ok"}`, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := DecodeOutput(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedOutput)
				return
			}
			require.NoError(t, err)
			assert.Len(t, out.Items, tt.items)
		})
	}
}

func TestGate_EmptyManifestSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{reply: replyJSON([]Item{{ID: "ghost"}}, "ghost")}
	v := NewGate(gen).Respond(context.Background(), Input{Query: "xyzzy", Locale: intent.LocalePT})

	assert.True(t, v.Refine)
	assert.Equal(t, StatusSkipped, v.Status)
	assert.Empty(t, v.Items)
	assert.NotNil(t, v.Items)
	assert.Equal(t, RefineMessage(intent.LocalePT), v.Message)
	assert.Zero(t, gen.calls())
}

func TestGate_FiltersUnknownIDs(t *testing.T) {
	gen := &fakeGenerator{reply: replyJSON([]Item{
		{ID: "p-2", Reason: "melhor custo"},
		{ID: "iphone-99", Reason: "inventado"},
		{ID: "p-2", Reason: "repetido"},
		{ID: "p-1"},
	}, "Veja estas opções")}

	v := NewGate(gen).Respond(context.Background(), Input{
		Query:      "drone",
		Locale:     intent.LocalePT,
		Candidates: catalogtest.Products("p", "loja-a", 3),
	})

	assert.False(t, v.Refine)
	assert.Equal(t, StatusOK, v.Status)
	assert.Equal(t, []string{"p-2", "p-1"}, v.CitedIDs())
	assert.Equal(t, []string{"iphone-99"}, v.Dropped)
	assert.Equal(t, "melhor custo", v.Items[0].Reason)
	assert.Equal(t, "Produto p-2", v.Items[0].Title, "item data comes from the manifest")
	assert.Equal(t, IntroMessage(intent.LocalePT), v.Message, "free text of a partly ungrounded reply is replaced")
	assert.Equal(t, 1, gen.calls())
}

func TestGate_MessageNamingDroppedIDIsReplaced(t *testing.T) {
	gen := &fakeGenerator{reply: replyJSON([]Item{
		{ID: "d-1", Reason: "bom custo"},
		{ID: "FAKE-9", Reason: "o melhor"},
		{ID: "d-2", Reason: "melhor que o FAKE-9"},
	}, "O FAKE-9 é o melhor drone da loja")}

	v := NewGate(gen).Respond(context.Background(), Input{
		Query:      "drone",
		Locale:     intent.LocalePT,
		Candidates: catalogtest.Products("d", "loja-a", 2),
	})

	require.False(t, v.Refine)
	assert.Equal(t, []string{"d-1", "d-2"}, v.CitedIDs())
	assert.Equal(t, []string{"FAKE-9"}, v.Dropped)
	assert.Equal(t, IntroMessage(intent.LocalePT), v.Message)
	assert.NotContains(t, v.Message, "FAKE-9")
	assert.Equal(t, "bom custo", v.Items[0].Reason)
	assert.Empty(t, v.Items[1].Reason)
}

func TestGate_CleanReplyKeepsMessage(t *testing.T) {
	gen := &fakeGenerator{reply: replyJSON([]Item{{ID: "p-1"}}, "Veja estas opções")}

	v := NewGate(gen).Respond(context.Background(), Input{
		Query:      "drone",
		Locale:     intent.LocalePT,
		Candidates: catalogtest.Products("p", "loja-a", 2),
	})

	assert.Empty(t, v.Dropped)
	assert.Equal(t, "Veja estas opções", v.Message)
}

func TestGate_AllIDsUnknownFallsBackToRefine(t *testing.T) {
	gen := &fakeGenerator{reply: replyJSON([]Item{{ID: "x"}, {ID: "y"}}, "Recomendo o X")}

	v := NewGate(gen).Respond(context.Background(), Input{
		Locale:     intent.LocaleEN,
		Candidates: catalogtest.Products("p", "loja-a", 2),
	})

	assert.True(t, v.Refine)
	assert.Equal(t, StatusOK, v.Status)
	assert.Equal(t, []string{"x", "y"}, v.Dropped)
	assert.Equal(t, RefineMessage(intent.LocaleEN), v.Message)
}

func TestGate_MalformedOutputFailsClosed(t *testing.T) {
	gen := &fakeGenerator{reply: func(Request) (string, error) {
		return `Recomendo o p-1, é ótimo!`, nil
	}}
	v := NewGate(gen).Respond(context.Background(), Input{Candidates: catalogtest.Products("p", "loja-a", 2)})

	assert.True(t, v.Refine)
	assert.Equal(t, StatusMalformed, v.Status)
	assert.ErrorIs(t, v.Err, ErrMalformedOutput)
	assert.Empty(t, v.Items)
}

func TestGate_GeneratorErrorAndTimeout(t *testing.T) {
	failing := &fakeGenerator{reply: func(Request) (string, error) { return "", errors.New("provider down") }}
	v := NewGate(failing).Respond(context.Background(), Input{Candidates: catalogtest.Products("p", "loja-a", 1)})
	assert.True(t, v.Refine)
	assert.Equal(t, StatusError, v.Status)

	slow := &fakeGenerator{reply: func(Request) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return `{"items":[{"id":"p-1"}],"message":"ok"}`, nil
	}}
	gate := NewGate(slowCtxGenerator{slow}, WithTimeout(10*time.Millisecond))
	v = gate.Respond(context.Background(), Input{Candidates: catalogtest.Products("p", "loja-a", 1)})
	assert.True(t, v.Refine)
	assert.ErrorIs(t, v.Err, context.DeadlineExceeded)
}

// slowCtxGenerator waits for the deadline before delegating.
type slowCtxGenerator struct{ *fakeGenerator }

func (s slowCtxGenerator) Generate(ctx context.Context, req Request) (string, error) {
	<-ctx.Done()
	return s.fakeGenerator.Generate(ctx, req)
}

func TestGate_RequestCarriesContractAndManifest(t *testing.T) {
	gen := &fakeGenerator{reply: replyJSON([]Item{{ID: "p-1"}}, "")}
	gate := NewGate(gen, WithMaxEntries(2))

	v := gate.Respond(context.Background(), Input{
		Query:      "drone bom",
		Locale:     intent.LocaleEN,
		Profile:    Profile{Interests: []string{"drone"}},
		Candidates: catalogtest.Products("p", "loja-a", 5),
	})

	require.Equal(t, 1, gen.calls())
	req := gen.requests[0]
	assert.Equal(t, Contract, req.Contract)
	assert.Equal(t, []string{"p-1", "p-2"}, req.Manifest.IDs())
	assert.Contains(t, req.Prompt(), `"id":"p-1"`)
	assert.Contains(t, req.Prompt(), "QUESTION: drone bom")
	assert.Equal(t, IntroMessage(intent.LocaleEN), v.Message, "empty message is replaced")
}

// A generator that mixes manifest ids with fabricated ones must never get a
// fabricated id through.
func TestGate_GroundingInvariantFuzz(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 300; iter++ {
		n := rng.Intn(12)
		candidates := catalogtest.Products(fmt.Sprintf("c%d", iter), fmt.Sprintf("loja-%d", rng.Intn(3)), n)

		gen := &fakeGenerator{reply: func(req Request) (string, error) {
			ids := req.Manifest.IDs()
			var items []Item
			for k := rng.Intn(6); k >= 0; k-- {
				if len(ids) > 0 && rng.Intn(2) == 0 {
					items = append(items, Item{ID: ids[rng.Intn(len(ids))]})
				} else {
					items = append(items, Item{ID: fmt.Sprintf("fake-%d", rng.Int())})
				}
			}
			if rng.Intn(10) == 0 {
				return "not json " + strings.Repeat("x", rng.Intn(5)), nil
			}
			return replyJSON(items, "msg")(req)
		}}

		v := NewGate(gen).Respond(context.Background(), Input{Query: "q", Candidates: candidates})

		for _, it := range v.Items {
			if !v.Manifest.Contains(it.ID) {
				t.Fatalf("iter %d: ungrounded id %q reached the verdict", iter, it.ID)
			}
		}
		if len(v.Items) == 0 && (!v.Refine || v.Message != RefineMessage(intent.LocalePT)) {
			t.Fatalf("iter %d: empty items without refine message", iter)
		}
		if v.Manifest.Len() > MaxManifestEntries {
			t.Fatalf("iter %d: manifest has %d entries", iter, v.Manifest.Len())
		}
	}
}

func TestMessagesFallBackToPortuguese(t *testing.T) {
	assert.Equal(t, RefineMessage(intent.LocalePT), RefineMessage("fr"))
	assert.Contains(t, RefineMessage(intent.LocalePT), "categoria")
	assert.Contains(t, RefineMessage(intent.LocaleEN), "budget")
	assert.NotEmpty(t, SmalltalkMessage(intent.LocaleEN))
}
