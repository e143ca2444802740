package grounding

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Contract is the instruction sent with every generation request.
const Contract = `You are the shopping assistant of a local marketplace.
Rules:
1. Only recommend products listed in MANIFEST. Never mention, invent or describe any product, store or price that is not in MANIFEST.
2. If MANIFEST is empty, do not answer the question: ask the user to refine the search by category, city or budget, and return no items.
3. Reply with a single JSON object and nothing else, shaped exactly as {"items":[{"id":"<manifest id>","reason":"<short reason>"}],"message":"<reply to the user>"}.
4. Every "id" must be copied verbatim from MANIFEST. Cite at most 3 items, best first.
5. Write "message" and every "reason" in the user's language, in at most 3 short sentences.`

// ErrMalformedOutput reports generator output that does not match the contract shape.
var ErrMalformedOutput = errors.New("grounding: malformed generation output")

// Profile is the part of the user profile shared with the generator.
type Profile struct {
	Interests           []string `json:"interests,omitempty"`
	PreferredCategories []string `json:"preferred_categories,omitempty"`
}

// Request is what the generator receives. It is built only by the Gate.
type Request struct {
	Contract string   `json:"contract"`
	Query    string   `json:"query"`
	Locale   string   `json:"locale"`
	Profile  Profile  `json:"user_profile"`
	Manifest Manifest `json:"manifest"`
}

// Prompt renders the user part of the request as text for chat-style providers.
func (r Request) Prompt() string {
	manifest, _ := json.Marshal(r.Manifest)
	profile, _ := json.Marshal(r.Profile)

	var b strings.Builder
	fmt.Fprintf(&b, "LOCALE: %s\n", r.Locale)
	fmt.Fprintf(&b, "USER PROFILE: %s\n", profile)
	fmt.Fprintf(&b, "MANIFEST: %s\n", manifest)
	fmt.Fprintf(&b, "QUESTION: %s\n", r.Query)
	return b.String()
}

// Item is one product cited by the generator.
type Item struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Output is the decoded generator answer.
type Output struct {
	Items   []Item `json:"items"`
	Message string `json:"message"`
}

// CitedIDs returns the ids in generation order.
func (o Output) CitedIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

type wireOutput struct {
	Items   *[]wireItem `json:"items"`
	Message *string     `json:"message"`
}

type wireItem struct {
	ID     *string `json:"id"`
	Reason *string `json:"reason"`
}

// OutputSchema is the JSON schema of Output, for providers with structured output.
var OutputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":     map[string]any{"type": "string"},
					"reason": map[string]any{"type": "string"},
				},
				"required":             []string{"id", "reason"},
				"additionalProperties": false,
			},
		},
		"message": map[string]any{"type": "string"},
	},
	"required":             []string{"items", "message"},
	"additionalProperties": false,
}

// DecodeOutput parses raw generator text. The text must hold exactly one JSON
// object with an "items" array and a "message" string; every item needs a
// string id. Fields outside OutputSchema are rejected. A surrounding markdown
// code fence is tolerated.
func DecodeOutput(raw string) (Output, error) {
	text := stripFence(raw)
	if text == "" {
		return Output{}, fmt.Errorf("%w: empty", ErrMalformedOutput)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	var w wireOutput
	if err := dec.Decode(&w); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if dec.More() {
		return Output{}, fmt.Errorf("%w: trailing data", ErrMalformedOutput)
	}
	if w.Items == nil {
		return Output{}, fmt.Errorf("%w: missing items", ErrMalformedOutput)
	}
	if w.Message == nil {
		return Output{}, fmt.Errorf("%w: missing message", ErrMalformedOutput)
	}

	out := Output{Message: strings.TrimSpace(*w.Message), Items: make([]Item, 0, len(*w.Items))}
	for i, it := range *w.Items {
		if it.ID == nil || strings.TrimSpace(*it.ID) == "" {
			return Output{}, fmt.Errorf("%w: item %d has no id", ErrMalformedOutput, i)
		}
		item := Item{ID: strings.TrimSpace(*it.ID)}
		if it.Reason != nil {
			item.Reason = strings.TrimSpace(*it.Reason)
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func stripFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
