// api/schemas/recording.go
package schemas

import (
	"fmt"
	"os"
	"time"
)

// EventType identifies a raw interaction event.
type EventType string

const (
	EventClick     EventType = "click"
	EventScroll    EventType = "scroll"
	EventKeypress  EventType = "keypress"
	EventMouseMove EventType = "mousemove"
)

// Event is one raw, timestamped interaction captured inside the page.
// Timestamp is the offset in seconds from recording start. Which of the
// remaining fields are meaningful depends on Type.
type Event struct {
	Type      EventType `json:"type"`
	Selector  string    `json:"selector,omitempty"`
	X         float64   `json:"x,omitempty"`
	Y         float64   `json:"y,omitempty"`
	ScrollX   float64   `json:"scrollX,omitempty"`
	ScrollY   float64   `json:"scrollY,omitempty"`
	Key       string    `json:"key,omitempty"`
	Code      string    `json:"code,omitempty"`
	Timestamp float64   `json:"timestamp"`
}

// RecordingSession is one recorded interaction run against a single page.
// Events are ordered by timestamp. DurationSeconds is derived by the
// recorder and only authoritative once recording has stopped.
type RecordingSession struct {
	SessionID       string    `json:"session_id"`
	Timestamp       time.Time `json:"timestamp"`
	Target          string    `json:"target"`
	Events          []Event   `json:"events"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// CountByType tallies events per type, for reporting.
func (r *RecordingSession) CountByType() map[EventType]int {
	counts := make(map[EventType]int)
	for _, e := range r.Events {
		counts[e.Type]++
	}
	return counts
}

// LoadRecording reads a recording session file.
func LoadRecording(path string) (*RecordingSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recording %s: %w", path, err)
	}
	var rec RecordingSession
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing recording %s: %w", path, err)
	}
	return &rec, nil
}

// Save writes the recording session to path as indented JSON.
func (r *RecordingSession) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding recording: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing recording %s: %w", path, err)
	}
	return nil
}
