// internal/snapshot/store_test.go
package snapshot

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stagehand/api/schemas"
)

// fakePage is an in-memory PageContext whose mutations are observable.
type fakePage struct {
	vars map[string]interface{}
	html map[string]string
	text map[string]string
}

func newFakePage() *fakePage {
	return &fakePage{
		vars: make(map[string]interface{}),
		html: make(map[string]string),
		text: make(map[string]string),
	}
}

func (f *fakePage) Resolve(_ context.Context, name string) (interface{}, bool) {
	v, ok := f.vars[name]
	return v, ok
}

func (f *fakePage) IsVisible(context.Context, string) bool { return false }

func (f *fakePage) IsHidden(context.Context, string) bool { return true }

func (f *fakePage) HasClass(context.Context, string, string) bool { return false }

func (f *fakePage) TextContains(context.Context, string, string) bool { return false }

func (f *fakePage) InnerHTML(_ context.Context, selector string) (string, error) {
	h, ok := f.html[selector]
	if !ok {
		return "", fmt.Errorf("no element matches %q", selector)
	}
	return h, nil
}

func (f *fakePage) SetInnerHTML(_ context.Context, selector, html string) error {
	f.html[selector] = html
	return nil
}

func (f *fakePage) SetVariable(_ context.Context, name string, value interface{}) error {
	f.vars[name] = value
	return nil
}

func (f *fakePage) SetText(_ context.Context, selector, text string) error {
	f.text[selector] = text
	return nil
}

func testSchema() *schemas.StateSchema {
	return &schemas.StateSchema{
		Metadata: schemas.SchemaMetadata{
			TotalStates:     2,
			StateVariable:   "stage",
			PrimaryCounter:  "count",
			ContentSelector: "#contentArea",
			CounterSelector: "#counter",
		},
		States: []schemas.StateDefinition{
			{
				ID:                 0,
				Name:               "Idle",
				DetectionCondition: "stage === 0",
				KeyVariables:       []schemas.KeyVariable{{Name: "started"}},
			},
			{
				ID:                 1,
				Name:               "Active",
				DetectionCondition: "stage === 1",
			},
		},
	}
}

func TestCapture(t *testing.T) {
	page := newFakePage()
	page.vars["stage"] = float64(1)
	page.vars["count"] = float64(7)
	page.html["#contentArea"] = `<div class="post">hello</div>`
	// "started" deliberately unresolvable.

	store := NewStore(t.TempDir(), zap.NewNop())
	snap, err := store.Capture(context.Background(), page, testSchema(), "session_001", 1, 12.5)
	require.NoError(t, err)

	assert.Equal(t, "session_001", snap.SessionID)
	assert.Equal(t, 1, snap.StateID)
	assert.Equal(t, 12.5, snap.CapturedAt)
	assert.Equal(t, `<div class="post">hello</div>`, snap.DOM)
	assert.Equal(t, float64(1), snap.Variables["stage"])
	assert.Equal(t, float64(7), snap.Variables["count"])
	assert.NotContains(t, snap.Variables, "started")
	require.NotNil(t, snap.Counter)
	assert.Equal(t, 7.0, *snap.Counter)
}

func TestCapture_MissingContentContainer(t *testing.T) {
	page := newFakePage()
	store := NewStore(t.TempDir(), zap.NewNop())

	_, err := store.Capture(context.Background(), page, testSchema(), "s", 0, 0)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), zap.NewNop())
	snap := &schemas.Snapshot{
		SessionID:  "session_001",
		StateID:    2,
		Variables:  map[string]interface{}{"stage": float64(2)},
		DOM:        "<p>mid</p>",
		CapturedAt: 3.5,
	}
	require.NoError(t, store.Save(snap))

	loaded, err := store.Load("session_001", 2)
	require.NoError(t, err)
	if diff := cmp.Diff(snap, loaded); diff != "" {
		t.Errorf("snapshot mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestSave_OverwritesSameStage(t *testing.T) {
	store := NewStore(t.TempDir(), zap.NewNop())

	first := &schemas.Snapshot{SessionID: "s", StateID: 1, DOM: "old", Variables: map[string]interface{}{}}
	second := &schemas.Snapshot{SessionID: "s", StateID: 1, DOM: "new", Variables: map[string]interface{}{}, CapturedAt: 9}
	require.NoError(t, store.Save(first))
	require.NoError(t, store.Save(second))

	loaded, err := store.Load("s", 1)
	require.NoError(t, err)
	assert.Equal(t, "new", loaded.DOM)

	manifest, err := store.Manifest("s")
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.StagesCaptured)
}

func TestManifest(t *testing.T) {
	store := NewStore(t.TempDir(), zap.NewNop())
	for _, id := range []int{3, 0, 1} {
		require.NoError(t, store.Save(&schemas.Snapshot{
			SessionID: "session_001",
			StateID:   id,
			Variables: map[string]interface{}{},
		}))
	}

	manifest, err := store.Manifest("session_001")
	require.NoError(t, err)
	assert.Equal(t, "session_001", manifest.SessionID)
	assert.Equal(t, 3, manifest.StagesCaptured)
	assert.Equal(t, []int{0, 1, 3}, manifest.StageNumbers)
}

func TestLoad_NotFound(t *testing.T) {
	store := NewStore(t.TempDir(), zap.NewNop())

	_, err := store.Load("nope", 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "stage 4")
}

func TestSessions(t *testing.T) {
	store := NewStore(t.TempDir(), zap.NewNop())
	sessions, err := store.Sessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)

	require.NoError(t, store.Save(&schemas.Snapshot{SessionID: "b", StateID: 0, Variables: map[string]interface{}{}}))
	require.NoError(t, store.Save(&schemas.Snapshot{SessionID: "a", StateID: 0, Variables: map[string]interface{}{}}))

	sessions, err = store.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sessions)
}

func TestRestore(t *testing.T) {
	counter := 15.0
	snap := &schemas.Snapshot{
		SessionID: "s",
		StateID:   1,
		Variables: map[string]interface{}{
			"stage": float64(1),
			"count": float64(15),
		},
		DOM:     `<div id="feed">posts</div>`,
		Counter: &counter,
	}

	page := newFakePage()
	page.html["#contentArea"] = "<p>fresh</p>"
	store := NewStore(t.TempDir(), zap.NewNop())

	require.NoError(t, store.Restore(context.Background(), page, testSchema(), snap))

	assert.Equal(t, float64(1), page.vars["stage"])
	assert.Equal(t, float64(15), page.vars["count"])
	assert.Equal(t, `<div id="feed">posts</div>`, page.html["#contentArea"])
	assert.Equal(t, "15", page.text["#counter"])
}

func TestRestore_Idempotent(t *testing.T) {
	counter := 3.0
	snap := &schemas.Snapshot{
		SessionID: "s",
		StateID:   0,
		Variables: map[string]interface{}{"stage": float64(0)},
		DOM:       "<p>start</p>",
		Counter:   &counter,
	}

	page := newFakePage()
	page.html["#contentArea"] = "<p>fresh</p>"
	store := NewStore(t.TempDir(), zap.NewNop())

	require.NoError(t, store.Restore(context.Background(), page, testSchema(), snap))
	firstVars := map[string]interface{}{}
	for k, v := range page.vars {
		firstVars[k] = v
	}
	firstHTML := page.html["#contentArea"]

	require.NoError(t, store.Restore(context.Background(), page, testSchema(), snap))
	assert.Equal(t, firstVars, page.vars)
	assert.Equal(t, firstHTML, page.html["#contentArea"])
}

func TestRestore_NoCounter(t *testing.T) {
	snap := &schemas.Snapshot{
		SessionID: "s",
		StateID:   0,
		Variables: map[string]interface{}{},
		DOM:       "<p>x</p>",
	}

	page := newFakePage()
	store := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, store.Restore(context.Background(), page, testSchema(), snap))
	assert.Empty(t, page.text)
}

func TestInspect(t *testing.T) {
	snap := &schemas.Snapshot{
		DOM: `<div class="post"><span>hello</span></div><div>world</div>`,
	}
	elements, textLen, err := Inspect(snap)
	require.NoError(t, err)
	assert.Equal(t, 3, elements)
	assert.Equal(t, len("hello")+len("world"), textLen)
}

func TestFormatCounter(t *testing.T) {
	assert.Equal(t, "15", formatCounter(15))
	assert.Equal(t, "1.5", formatCounter(1.5))
}
