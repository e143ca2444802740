package conversation

import "fmt"

// TurnState is a step of the turn state machine.
type TurnState string

const (
	StateReceive       TurnState = "RECEIVE"
	StateClassify      TurnState = "CLASSIFY"
	StateFocusShortcut TurnState = "FOCUS_SHORTCUT"
	StateRetrieve      TurnState = "RETRIEVE"
	StateRank          TurnState = "RANK"
	StateBuildManifest TurnState = "BUILD_MANIFEST"
	StateGenerate      TurnState = "GENERATE"
	StateValidate      TurnState = "VALIDATE"
	StateRespond       TurnState = "RESPOND"
	StateRespondRefine TurnState = "RESPOND_REFINE"
)

// CLASSIFY -> RESPOND is the small-talk path.
var allowedTransitions = map[TurnState]map[TurnState]struct{}{
	StateReceive:       {StateClassify: {}},
	StateClassify:      {StateFocusShortcut: {}, StateRetrieve: {}, StateRespond: {}},
	StateFocusShortcut: {StateRank: {}},
	StateRetrieve:      {StateRank: {}},
	StateRank:          {StateBuildManifest: {}},
	StateBuildManifest: {StateGenerate: {}, StateRespondRefine: {}},
	StateGenerate:      {StateValidate: {}},
	StateValidate:      {StateRespond: {}, StateRespondRefine: {}},
}

// Terminal reports whether s ends a turn.
func (s TurnState) Terminal() bool {
	return s == StateRespond || s == StateRespondRefine
}

func validateTransition(from, to TurnState) error {
	if from.Terminal() {
		return fmt.Errorf("illegal turn transition %q -> %q: terminal state is immutable", from, to)
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("illegal turn transition %q -> %q", from, to)
	}
	return nil
}

// trail records the states a turn went through.
type trail struct {
	states []TurnState
}

func newTrail() *trail {
	return &trail{states: []TurnState{StateReceive}}
}

func (t *trail) current() TurnState {
	return t.states[len(t.states)-1]
}

// advance moves to next. An illegal transition is a programming error.
func (t *trail) advance(next TurnState) {
	if err := validateTransition(t.current(), next); err != nil {
		panic(err)
	}
	t.states = append(t.states, next)
}

func (t *trail) strings() []string {
	out := make([]string, len(t.states))
	for i, s := range t.states {
		out[i] = string(s)
	}
	return out
}
