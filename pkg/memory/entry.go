// Package memory provides the per-session conversational state used by the
// Vitrine turn engine: message history, a bounded context stack, the focus
// entity, the last shown candidates, the user profile and behavior signals.
package memory

import (
	"time"

	"github.com/vitrine/vitrine/pkg/catalog"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ConversationMemory is the full state of one session.
type ConversationMemory struct {
	// SessionID identifies the session.
	SessionID string `json:"session_id"`

	// Messages is the ordered, bounded message history.
	Messages []Message `json:"messages"`

	// ContextStack holds relevance-scored frames, bounded by eviction.
	ContextStack []ContextFrame `json:"context_stack"`

	// Profile accumulates user interests and preferred categories.
	Profile UserProfile `json:"user_profile"`

	// CurrentFocusID is the product currently under discussion. Empty means no focus.
	CurrentFocusID string `json:"current_focus_id,omitempty"`

	// LastShown is the ranked window shown on the most recent product turn.
	LastShown []catalog.Candidate `json:"last_shown_candidates"`

	// LastQuery is the retrieval term of the most recent product turn.
	LastQuery string `json:"last_query,omitempty"`

	// LastCategory is the category inferred on the most recent product turn.
	LastCategory string `json:"last_category,omitempty"`

	// Signals is the bounded behavior signal history.
	Signals []BehaviorSignal `json:"behavior_signals"`

	// CreatedAt is when the record was first initialized.
	CreatedAt time.Time `json:"created_at"`

	// LastInteractionAt is updated on every mutation.
	LastInteractionAt time.Time `json:"last_interaction_at"`
}

// Focus returns the focused candidate if it is still among the last shown ones.
func (m *ConversationMemory) Focus() (catalog.Candidate, bool) {
	if m.CurrentFocusID == "" {
		return catalog.Candidate{}, false
	}
	idx := catalog.IndexOf(m.LastShown, m.CurrentFocusID)
	if idx < 0 {
		return catalog.Candidate{}, false
	}
	return m.LastShown[idx], true
}

// Message is one utterance in the history. Messages are never edited after append.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Intent    string    `json:"intent,omitempty"`
	Sentiment string    `json:"sentiment,omitempty"`
}

// MessageMeta carries the optional annotations of a message.
type MessageMeta struct {
	Intent    string
	Sentiment string
}

// ContextFrame is a timestamped, relevance-scored unit of conversational state.
type ContextFrame struct {
	Type      string            `json:"type"`
	Payload   map[string]string `json:"payload,omitempty"`
	Relevance float64           `json:"relevance"`
	Timestamp time.Time         `json:"timestamp"`
}

// Frame types written by the turn engine.
const (
	FrameQuery    = "query"
	FrameFocus    = "focus"
	FrameCategory = "category"
)

// UserProfile holds what the session has revealed about the user.
type UserProfile struct {
	Interests           []string `json:"interests,omitempty"`
	PreferredCategories []string `json:"preferred_categories,omitempty"`
}

// BehaviorSignal is an observation consumed by follow-up and analytics readers.
type BehaviorSignal struct {
	Type      string    `json:"type"`
	Value     string    `json:"value,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Shown describes the outcome of a product turn, replacing the previous one wholesale.
type Shown struct {
	Query      string
	Category   string
	Candidates []catalog.Candidate
}
