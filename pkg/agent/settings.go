// Package agent speaks the Deepgram Voice Agent websocket protocol.
package agent

import (
	_ "embed"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed settings.default.yaml
var defaultSettings []byte

// Settings is the Settings message sent when the agent connection opens. Its
// contents are passed through; only agent.greeting is touched.
type Settings map[string]any

// DefaultSettings returns the built-in settings document.
func DefaultSettings() (Settings, error) {
	return ParseSettings(defaultSettings)
}

// LoadSettings reads a settings document from a YAML or JSON file. An empty
// path yields the built-in document.
func LoadSettings(path string) (Settings, error) {
	if path == "" {
		return DefaultSettings()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "agent settings: read")
	}
	return ParseSettings(b)
}

// ParseSettings accepts YAML or JSON (JSON is valid YAML).
func ParseSettings(b []byte) (Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrap(err, "agent settings: parse")
	}
	if s == nil {
		return nil, errors.New("agent settings: empty document")
	}
	if _, ok := s["type"]; !ok {
		s["type"] = TypeSettings
	}
	return s, nil
}

// WithGreeting returns a copy with agent.greeting replaced. Settings without
// an agent object are returned unchanged.
func (s Settings) WithGreeting(greeting string) Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	agent, ok := s["agent"].(map[string]any)
	if !ok {
		return out
	}
	a := make(map[string]any, len(agent)+1)
	for k, v := range agent {
		a[k] = v
	}
	a["greeting"] = greeting
	out["agent"] = a
	return out
}

// Greeting reads agent.greeting.
func (s Settings) Greeting() string {
	agent, ok := s["agent"].(map[string]any)
	if !ok {
		return ""
	}
	g, _ := agent["greeting"].(string)
	return g
}

func (s Settings) Marshal() ([]byte, error) {
	b, err := json.Marshal(map[string]any(s))
	if err != nil {
		return nil, errors.Wrap(err, "agent settings: marshal")
	}
	return b, nil
}
