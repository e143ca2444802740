package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vitrine/vitrine/config"
	"github.com/vitrine/vitrine/pkg/grounding"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI generates answers with the chat completions API and a strict JSON
// schema response format.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// NewOpenAI creates an OpenAI generator from cfg.
func NewOpenAI(cfg config.GenerationConfig, opts ...option.RequestOption) *OpenAI {
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAI{
		client:    openai.NewClient(reqOpts...),
		model:     modelOr(cfg.Model, DefaultOpenAIModel),
		maxTokens: int64(cfg.MaxTokens),
	}
}

// Name returns "openai".
func (o *OpenAI) Name() string { return ProviderOpenAI }

// Generate sends the contract as the system message and the rendered request
// as the user message.
func (o *OpenAI) Generate(ctx context.Context, req grounding.Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.Contract),
			openai.UserMessage(req.Prompt()),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "grounded_answer",
					Description: openai.String("Products cited from the manifest and the reply to the user"),
					Schema:      grounding.OutputSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}
	if o.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(o.maxTokens)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("openai: refused: %s", msg.Refusal)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return msg.Content, nil
}
