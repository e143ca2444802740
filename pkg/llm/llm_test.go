package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrine/vitrine/config"
	"github.com/vitrine/vitrine/pkg/catalog/catalogtest"
	"github.com/vitrine/vitrine/pkg/grounding"
	"github.com/vitrine/vitrine/pkg/intent"
)

func testRequest(n int) grounding.Request {
	return grounding.Request{
		Contract: grounding.Contract,
		Query:    "drone barato",
		Locale:   intent.LocalePT,
		Manifest: grounding.NewManifest(catalogtest.Products("p", "loja-a", n), 0),
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.GenerationConfig
		wantName string
		limited  bool
		wantErr  error
	}{
		{"scripted", config.GenerationConfig{Provider: "scripted"}, ProviderScripted, false, nil},
		{"openai limited", config.GenerationConfig{Provider: "openai", APIKey: "k", RateLimit: 2}, ProviderOpenAI, true, nil},
		{"anthropic", config.GenerationConfig{Provider: "Anthropic", APIKey: "k"}, ProviderAnthropic, false, nil},
		{"unknown", config.GenerationConfig{Provider: "parrot"}, "", false, ErrUnknownProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, gen.Name())
			_, isLimited := gen.(*RateLimited)
			assert.Equal(t, tt.limited, isLimited)
		})
	}
}

func TestScripted_DefaultAnswerIsGrounded(t *testing.T) {
	s := NewScripted()
	req := testRequest(5)

	raw, err := s.Generate(context.Background(), req)
	require.NoError(t, err)

	out, err := grounding.DecodeOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-1", "p-2", "p-3"}, out.CitedIDs())
	assert.Equal(t, grounding.IntroMessage(intent.LocalePT), out.Message)
	assert.Equal(t, 1, s.Calls())
}

func TestScripted_QueueThenDefault(t *testing.T) {
	boom := errors.New("boom")
	s := NewScripted(Reply{Raw: "not json"}, Reply{Err: boom})

	raw, err := s.Generate(context.Background(), testRequest(1))
	require.NoError(t, err)
	assert.Equal(t, "not json", raw)

	_, err = s.Generate(context.Background(), testRequest(1))
	assert.ErrorIs(t, err, boom)

	raw, err = s.Generate(context.Background(), testRequest(1))
	require.NoError(t, err)
	assert.Contains(t, raw, `"p-1"`)
	assert.Len(t, s.Requests(), 3)
}

func TestScripted_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScripted().Generate(ctx, testRequest(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimited_WaitRespectsContext(t *testing.T) {
	inner := NewScripted()
	gen := NewRateLimited(inner, 0.001, 1)

	_, err := gen.Generate(context.Background(), testRequest(1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = gen.Generate(ctx, testRequest(1))
	require.Error(t, err)
	assert.Equal(t, 1, inner.Calls())
	assert.Same(t, grounding.Generator(inner), gen.Unwrap())
}

func TestOpenAI_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant",
			"content":"{\"items\":[{\"id\":\"p-1\",\"reason\":\"barato\"}],\"message\":\"ok\"}"}}]}`)
	}))
	defer srv.Close()

	gen := NewOpenAI(config.GenerationConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", MaxTokens: 300},
		openaiopt.WithMaxRetries(0))

	raw, err := gen.Generate(context.Background(), testRequest(2))
	require.NoError(t, err)
	out, err := grounding.DecodeOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-1"}, out.CitedIDs())

	assert.Equal(t, DefaultOpenAIModel, body["model"])
	format, _ := body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	msgs, _ := body["messages"].([]any)
	require.Len(t, msgs, 2)
	system, _ := msgs[0].(map[string]any)
	assert.Equal(t, grounding.Contract, system["content"])
}

func TestOpenAI_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gen := NewOpenAI(config.GenerationConfig{APIKey: "k", BaseURL: srv.URL + "/"}, openaiopt.WithMaxRetries(0))
	_, err := gen.Generate(context.Background(), testRequest(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai:")
}

func TestAnthropic_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"{\"items\":[{\"id\":\"p-2\",\"reason\":\"r\"}],"},
			{"type":"text","text":"\"message\":\"ok\"}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`)
	}))
	defer srv.Close()

	gen := NewAnthropic(config.GenerationConfig{APIKey: "ak-test", BaseURL: srv.URL, Model: "gpt-4o-mini"},
		anthropicopt.WithMaxRetries(0))

	raw, err := gen.Generate(context.Background(), testRequest(2))
	require.NoError(t, err)
	out, err := grounding.DecodeOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-2"}, out.CitedIDs())

	assert.Equal(t, DefaultAnthropicModel, body["model"])
	assert.EqualValues(t, 800, body["max_tokens"])
	system, _ := body["system"].([]any)
	require.Len(t, system, 1)
	assert.Equal(t, grounding.Contract, system[0].(map[string]any)["text"])
}

func TestAnthropic_EmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],
			"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`)
	}))
	defer srv.Close()

	gen := NewAnthropic(config.GenerationConfig{APIKey: "k", BaseURL: srv.URL}, anthropicopt.WithMaxRetries(0))
	_, err := gen.Generate(context.Background(), testRequest(1))
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
