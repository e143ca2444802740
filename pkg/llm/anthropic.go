package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vitrine/vitrine/config"
	"github.com/vitrine/vitrine/pkg/grounding"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// Anthropic generates answers with the messages API. The JSON shape is
// enforced by the contract alone; the gate rejects anything else.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates an Anthropic generator from cfg.
func NewAnthropic(cfg config.GenerationConfig, opts ...option.RequestOption) *Anthropic {
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	model := cfg.Model
	if strings.HasPrefix(model, "gpt-") {
		model = ""
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 800
	}
	return &Anthropic{
		client:    anthropic.NewClient(reqOpts...),
		model:     modelOr(model, DefaultAnthropicModel),
		maxTokens: maxTokens,
	}
}

// Name returns "anthropic".
func (a *Anthropic) Name() string { return ProviderAnthropic }

// Generate sends the contract as the system prompt and concatenates the text blocks of the reply.
func (a *Anthropic) Generate(ctx context.Context, req grounding.Request) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.Contract}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			b.WriteString(v.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}
	return b.String(), nil
}
