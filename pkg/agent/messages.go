package agent

import (
	"encoding/json"

	"github.com/go-go-golems/veriwire/pkg/dispatch"
	"github.com/pkg/errors"
)

const (
	TypeSettings             = "Settings"
	TypeWelcome              = "Welcome"
	TypeSettingsApplied      = "SettingsApplied"
	TypeUserStartedSpeaking  = "UserStartedSpeaking"
	TypeFunctionCallRequest  = "FunctionCallRequest"
	TypeFunctionCallResponse = "FunctionCallResponse"
	TypeInjectUserMessage    = "InjectUserMessage"
	TypeConversationText     = "ConversationText"
	TypeAgentAudioDone       = "AgentAudioDone"
	TypeError                = "Error"
	TypeWarning              = "Warning"
)

// Event is a decoded text frame from the agent. Only the fields the relay
// acts on are decoded; Raw keeps the frame.
type Event struct {
	Type        string          `json:"type"`
	Functions   []dispatch.Call `json:"functions,omitempty"`
	Role        string          `json:"role,omitempty"`
	Content     string          `json:"content,omitempty"`
	Description string          `json:"description,omitempty"`
	Code        string          `json:"code,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, errors.Wrap(err, "agent: decode event")
	}
	if ev.Type == "" {
		return Event{}, errors.New("agent: event has no type")
	}
	ev.Raw = append(json.RawMessage(nil), data...)
	return ev, nil
}

// InjectUserMessage builds a text input frame, used for keypad input.
func InjectUserMessage(content string) ([]byte, error) {
	return json.Marshal(map[string]string{"type": TypeInjectUserMessage, "content": content})
}
