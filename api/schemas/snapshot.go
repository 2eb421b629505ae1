// api/schemas/snapshot.go
package schemas

// Snapshot is a captured record of variable values and DOM markup
// sufficient to reconstruct the entry point of one state. Keyed by
// (session id, state id); re-entering a state during the same recording
// overwrites the earlier snapshot for that id.
type Snapshot struct {
	SessionID string `json:"session_id"`
	StateID   int    `json:"state_id"`
	// Variables holds a value for every schema key variable that was
	// resolvable at capture time. Unresolvable variables are simply absent.
	Variables map[string]interface{} `json:"variables"`
	// DOM is the serialized markup of the primary content container.
	DOM string `json:"dom"`
	// Counter is the primary counter value, when the schema names one and
	// it resolved to a number.
	Counter *float64 `json:"counter,omitempty"`
	// CapturedAt is the offset in seconds from recording start.
	CapturedAt float64 `json:"captured_at"`
}

// SnapshotManifest lists which stages were captured for one session, so
// discovery never has to open every snapshot file.
type SnapshotManifest struct {
	SessionID      string `json:"session_id"`
	StagesCaptured int    `json:"stages_captured"`
	StageNumbers   []int  `json:"stage_numbers"`
}
