package conversation

import (
	"errors"
	"time"

	"github.com/vitrine/vitrine/pkg/grounding"
	"github.com/vitrine/vitrine/pkg/resolver"
)

var (
	// ErrInvalidTurn reports a request without session id or utterance.
	ErrInvalidTurn = errors.New("conversation: invalid turn request")

	// ErrEngineClosed is returned once Close has been called.
	ErrEngineClosed = errors.New("conversation: engine closed")
)

// MaxUtteranceLength bounds the utterance in runes.
const MaxUtteranceLength = 2000

// Turn outcomes, used as message intent, signal value and metric label.
const (
	OutcomeAnswered  = "answered"
	OutcomeRefine    = "refine"
	OutcomeSmalltalk = "smalltalk"
)

// TurnRequest is one user utterance within a session.
type TurnRequest struct {
	SessionID string `json:"session_id"`
	Utterance string `json:"utterance"`
	// Locale is optional; it is detected from the utterance when empty.
	Locale string `json:"locale,omitempty"`
}

// TurnResponse is what the user gets back. Items only ever hold manifest entries.
type TurnResponse struct {
	SessionID string                   `json:"session_id"`
	TurnID    string                   `json:"turn_id"`
	Route     resolver.Route           `json:"route"`
	Outcome   string                   `json:"outcome"`
	Locale    string                   `json:"locale"`
	Message   string                   `json:"message"`
	Items     []grounding.GroundedItem `json:"items"`
	Refine    bool                     `json:"refine"`

	// Query is the retrieval term that was used, Tier the tier that produced candidates.
	Query string `json:"query,omitempty"`
	Tier  string `json:"tier,omitempty"`

	// FocusID is the focused product after the turn.
	FocusID string `json:"focus_id,omitempty"`

	States   []string      `json:"states"`
	Duration time.Duration `json:"duration_ns"`
}

func (r *TurnResponse) clone() *TurnResponse {
	c := *r
	c.Items = append([]grounding.GroundedItem{}, r.Items...)
	c.States = append([]string(nil), r.States...)
	return &c
}

// TurnOutcome is the read-only view handed to observers after a turn.
type TurnOutcome struct {
	Request  TurnRequest
	Response *TurnResponse

	CategoryMismatch bool
	SeedSize         int
	TierAttempts     int
	ManifestIDs      []string
	DroppedIDs       []string
	GenerationStatus string
	GenerationError  error
}

// Observer receives a copy of every finished turn. Observers must not block.
type Observer interface {
	OnTurn(outcome TurnOutcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(TurnOutcome)

// OnTurn calls f.
func (f ObserverFunc) OnTurn(o TurnOutcome) { f(o) }
