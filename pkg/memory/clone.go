package memory

import "github.com/vitrine/vitrine/pkg/catalog"

func cloneMemory(m *ConversationMemory) *ConversationMemory {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Messages = append([]Message(nil), m.Messages...)
	clone.ContextStack = make([]ContextFrame, len(m.ContextStack))
	for i, frame := range m.ContextStack {
		clone.ContextStack[i] = cloneFrame(frame)
	}
	clone.Profile = UserProfile{
		Interests:           append([]string(nil), m.Profile.Interests...),
		PreferredCategories: append([]string(nil), m.Profile.PreferredCategories...),
	}
	clone.LastShown = append([]catalog.Candidate(nil), m.LastShown...)
	clone.Signals = append([]BehaviorSignal(nil), m.Signals...)
	return &clone
}

func cloneFrame(frame ContextFrame) ContextFrame {
	if frame.Payload != nil {
		payload := make(map[string]string, len(frame.Payload))
		for key, value := range frame.Payload {
			payload[key] = value
		}
		frame.Payload = payload
	}
	return frame
}
