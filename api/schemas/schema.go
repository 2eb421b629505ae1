// api/schemas/schema.go
package schemas

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// json is the shared codec for every on-disk artifact. jsoniter keeps the
// exact encoding/json semantics while being considerably faster for the
// large event arrays a long recording produces.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ClassMatch asserts that the element matched by Selector carries Class.
type ClassMatch struct {
	Selector string `json:"selector"`
	Class    string `json:"class"`
}

// TextMatch asserts that the element matched by Selector contains the
// substring Contains in its text content.
type TextMatch struct {
	Selector string `json:"selector"`
	Contains string `json:"contains"`
}

// DOMDetection is the markup-based fallback signal for one state. All four
// lists must hold for a DOM match; an empty list holds vacuously.
type DOMDetection struct {
	VisibleElements []string     `json:"visible_elements,omitempty"`
	HiddenElements  []string     `json:"hidden_elements,omitempty"`
	HasClass        []ClassMatch `json:"has_class,omitempty"`
	TextContent     []TextMatch  `json:"text_content,omitempty"`
}

// Empty reports whether no DOM rules are defined at all. A state without
// DOM rules can only be detected through its variable condition.
func (d DOMDetection) Empty() bool {
	return len(d.VisibleElements) == 0 && len(d.HiddenElements) == 0 &&
		len(d.HasClass) == 0 && len(d.TextContent) == 0
}

// ColorTheme carries the display colors the analyzer assigned to a state.
// Purely informational; detection never looks at it.
type ColorTheme struct {
	Primary string `json:"primary,omitempty"`
	Active  string `json:"active,omitempty"`
	Border  string `json:"border,omitempty"`
}

// InteractiveElement describes an element that is meaningful to exercise
// while the application is in a given state. Reference data for testing.
type InteractiveElement struct {
	Name       string `json:"name"`
	Selector   string `json:"selector"`
	Type       string `json:"type,omitempty"`
	Visibility string `json:"visibility,omitempty"`
	State      string `json:"state,omitempty"`
	OnClick    string `json:"onclick,omitempty"`
}

// KeyVariable names an application variable whose value characterizes a
// state. The union of all key variables across states is what a snapshot
// captures.
type KeyVariable struct {
	Name    string      `json:"name"`
	Value   interface{} `json:"value,omitempty"`
	Type    string      `json:"type,omitempty"`
	Purpose string      `json:"purpose,omitempty"`
}

// StateDefinition describes one behavioral state of the target application.
type StateDefinition struct {
	ID                  int                  `json:"id"`
	Name                string               `json:"name"`
	Description         string               `json:"description,omitempty"`
	RangeDescription    string               `json:"range_description,omitempty"`
	DetectionCondition  string               `json:"detection_condition"`
	DOMDetection        DOMDetection         `json:"dom_detection,omitempty"`
	ColorTheme          ColorTheme           `json:"color_theme,omitempty"`
	InteractiveElements []InteractiveElement `json:"interactive_elements,omitempty"`
	KeyVariables        []KeyVariable        `json:"key_variables,omitempty"`
}

// SchemaMetadata carries schema-wide settings produced by the analyzer.
type SchemaMetadata struct {
	TotalStates     int    `json:"total_states"`
	StateVariable   string `json:"state_variable"`
	PrimaryCounter  string `json:"primary_counter,omitempty"`
	ContentSelector string `json:"content_selector,omitempty"`
	CounterSelector string `json:"counter_selector,omitempty"`
}

// StateSchema is the declarative contract for state detection and snapshot
// capture. States are ordered: position in the list is detection priority,
// so when two states' conditions hold simultaneously the earlier one wins.
type StateSchema struct {
	Metadata SchemaMetadata    `json:"metadata"`
	States   []StateDefinition `json:"states"`
}

// DefaultContentSelector is used when the analyzer did not name the primary
// content container.
const DefaultContentSelector = "#contentArea"

// DefaultCounterSelector is used when the analyzer did not name the counter
// display element.
const DefaultCounterSelector = "#counter"

// Validate enforces the hard preconditions on a schema. A schema that fails
// validation must never reach the detector; this is a configuration error,
// not a runtime condition.
func (s *StateSchema) Validate() error {
	if len(s.States) == 0 {
		return fmt.Errorf("schema contains no states")
	}
	seen := make(map[int]bool, len(s.States))
	for i, st := range s.States {
		if st.ID < 0 {
			return fmt.Errorf("state %q at position %d has negative id %d", st.Name, i, st.ID)
		}
		if seen[st.ID] {
			return fmt.Errorf("duplicate state id %d (state %q)", st.ID, st.Name)
		}
		seen[st.ID] = true
		if st.Name == "" {
			return fmt.Errorf("state with id %d has no name", st.ID)
		}
		if st.DetectionCondition == "" && st.DOMDetection.Empty() {
			return fmt.Errorf("state %d (%q) has neither a detection condition nor DOM detection rules", st.ID, st.Name)
		}
	}
	return nil
}

// StateByID returns the definition for id, if present.
func (s *StateSchema) StateByID(id int) (*StateDefinition, bool) {
	for i := range s.States {
		if s.States[i].ID == id {
			return &s.States[i], true
		}
	}
	return nil, false
}

// KeyVariableNames returns the union of key-variable names across all
// states, deduplicated, in order of first appearance. The state-tracking
// variable and the primary counter are always included so a snapshot can
// reconstruct stage progression even when the analyzer omitted them from
// the per-state lists.
func (s *StateSchema) KeyVariableNames() []string {
	var names []string
	seen := make(map[string]bool)
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	add(s.Metadata.StateVariable)
	add(s.Metadata.PrimaryCounter)
	for _, st := range s.States {
		for _, kv := range st.KeyVariables {
			add(kv.Name)
		}
	}
	return names
}

// ContentSelector returns the configured primary content container selector,
// falling back to the default.
func (s *StateSchema) ContentSelector() string {
	if s.Metadata.ContentSelector != "" {
		return s.Metadata.ContentSelector
	}
	return DefaultContentSelector
}

// CounterSelector returns the configured counter display selector, falling
// back to the default.
func (s *StateSchema) CounterSelector() string {
	if s.Metadata.CounterSelector != "" {
		return s.Metadata.CounterSelector
	}
	return DefaultCounterSelector
}

// LoadStateSchema reads and validates a schema file. Validation failures are
// surfaced immediately; callers must not attempt detection with a schema
// this function rejected.
func LoadStateSchema(path string) (*StateSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading state schema %s: %w", path, err)
	}
	var schema StateSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parsing state schema %s: %w", path, err)
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state schema %s: %w", path, err)
	}
	return &schema, nil
}
