// internal/converter/converter.go
// Package converter normalizes a raw recording session into a compact,
// replayable action script.
package converter

import (
	"fmt"
	"math"

	"github.com/xkilldash9x/stagehand/api/schemas"
)

// waitThreshold is the significance cutoff in seconds: gaps at or below it
// are dropped, meaning "execute immediately after the previous action".
const waitThreshold = 0.1

// bareModifiers are keypresses that carry no meaning on their own and are
// dropped from converted scripts.
var bareModifiers = map[string]bool{
	"Control": true,
	"Meta":    true,
	"Shift":   true,
	"Alt":     true,
}

// Convert transforms a recording into an action script. Pure and
// deterministic: the same session always yields the same script.
//
// Mouse movements are dropped unconditionally. For every retained event the
// wait is computed against the previous *retained* action, not the previous
// raw event, and attached only when it exceeds the significance threshold.
func Convert(session *schemas.RecordingSession) *schemas.ActionScript {
	actions := make([]schemas.Action, 0, len(session.Events))
	summary := make(map[schemas.EventType]int)
	lastRetained := 0.0
	first := true

	for _, ev := range session.Events {
		var action schemas.Action
		switch ev.Type {
		case schemas.EventMouseMove:
			continue
		case schemas.EventClick:
			action = schemas.Action{
				Type:     schemas.EventClick,
				Selector: ev.Selector,
				X:        ev.X,
				Y:        ev.Y,
			}
		case schemas.EventScroll:
			action = schemas.Action{
				Type:    schemas.EventScroll,
				ScrollX: ev.ScrollX,
				ScrollY: ev.ScrollY,
			}
		case schemas.EventKeypress:
			if bareModifiers[ev.Key] {
				continue
			}
			action = schemas.Action{Type: schemas.EventKeypress, Key: ev.Key}
		default:
			continue
		}

		if !first {
			if wait := ev.Timestamp - lastRetained; wait > waitThreshold {
				// One decimal is plenty of timing fidelity for replay and
				// keeps scripts hand-editable.
				action.Wait = math.Round(wait*10) / 10
			}
		}
		actions = append(actions, action)
		summary[action.Type]++
		lastRetained = ev.Timestamp
		first = false
	}

	return &schemas.ActionScript{
		Description:     fmt.Sprintf("Converted from %s", session.SessionID),
		SourceRecording: session.SessionID,
		TotalActions:    len(actions),
		Summary:         summary,
		Actions:         actions,
	}
}
