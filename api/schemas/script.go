// api/schemas/script.go
package schemas

import (
	"fmt"
	"os"
)

// Action is one normalized, replayable step of an ActionScript. Wait is the
// pause in seconds since the previous retained action; zero means "execute
// immediately" and is omitted from the encoding.
type Action struct {
	Type     EventType `json:"type"`
	Selector string    `json:"selector,omitempty"`
	X        float64   `json:"x,omitempty"`
	Y        float64   `json:"y,omitempty"`
	ScrollX  float64   `json:"scrollX,omitempty"`
	ScrollY  float64   `json:"scrollY,omitempty"`
	Key      string    `json:"key,omitempty"`
	Wait     float64   `json:"wait,omitempty"`
}

// ActionScript is the compact, noise-filtered derivative of exactly one
// recording session. Immutable once produced.
type ActionScript struct {
	Description     string            `json:"description"`
	SourceRecording string            `json:"source_recording"`
	TotalActions    int               `json:"total_actions"`
	Summary         map[EventType]int `json:"summary,omitempty"`
	Actions         []Action          `json:"actions"`
}

// LoadActionScript reads an action script file.
func LoadActionScript(path string) (*ActionScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading action script %s: %w", path, err)
	}
	var script ActionScript
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parsing action script %s: %w", path, err)
	}
	return &script, nil
}

// Save writes the script to path as indented JSON.
func (s *ActionScript) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding action script: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing action script %s: %w", path, err)
	}
	return nil
}
