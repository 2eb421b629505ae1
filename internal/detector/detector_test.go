// internal/detector/detector_test.go
package detector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stagehand/api/schemas"
)

// fakePage is an in-memory PageContext for detector tests.
type fakePage struct {
	vars    map[string]interface{}
	visible map[string]bool
	classes map[string]string
	text    map[string]string
}

func newFakePage() *fakePage {
	return &fakePage{
		vars:    make(map[string]interface{}),
		visible: make(map[string]bool),
		classes: make(map[string]string),
		text:    make(map[string]string),
	}
}

func (f *fakePage) Resolve(_ context.Context, name string) (interface{}, bool) {
	v, ok := f.vars[name]
	return v, ok
}

func (f *fakePage) IsVisible(_ context.Context, sel string) bool { return f.visible[sel] }

func (f *fakePage) IsHidden(_ context.Context, sel string) bool { return !f.visible[sel] }

func (f *fakePage) HasClass(_ context.Context, sel, class string) bool {
	return f.classes[sel] == class
}

func (f *fakePage) TextContains(_ context.Context, sel, substr string) bool {
	return f.text[sel] == substr
}

func (f *fakePage) InnerHTML(context.Context, string) (string, error) { return "", nil }

func (f *fakePage) SetInnerHTML(context.Context, string, string) error { return nil }

func (f *fakePage) SetVariable(context.Context, string, interface{}) error { return nil }

func (f *fakePage) SetText(context.Context, string, string) error { return nil }

func testSchema(t *testing.T) *schemas.StateSchema {
	t.Helper()
	return &schemas.StateSchema{
		Metadata: schemas.SchemaMetadata{
			TotalStates:   3,
			StateVariable: "stage",
		},
		States: []schemas.StateDefinition{
			{
				ID:                 0,
				Name:               "Idle",
				DetectionCondition: "stage === 0",
				DOMDetection: schemas.DOMDetection{
					VisibleElements: []string{"#startButton"},
					HiddenElements:  []string{"#overloadBanner"},
				},
			},
			{
				ID:                 1,
				Name:               "Active",
				DetectionCondition: "count >= 0 && count < 15",
				DOMDetection: schemas.DOMDetection{
					HasClass: []schemas.ClassMatch{{Selector: "#panel", Class: "active"}},
				},
			},
			{
				ID:                 2,
				Name:               "Overloaded",
				DetectionCondition: "count >= 15",
				DOMDetection: schemas.DOMDetection{
					TextContent: []schemas.TextMatch{{Selector: "#banner", Contains: "Overloaded"}},
				},
			},
		},
	}
}

func TestNew_RejectsInvalidSchema(t *testing.T) {
	_, err := New(&schemas.StateSchema{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNew_RejectsUnparseableCondition(t *testing.T) {
	schema := testSchema(t)
	schema.States[1].DetectionCondition = "count >< 3"
	_, err := New(schema, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Active")
}

func TestDetect_ConditionMatch(t *testing.T) {
	det, err := New(testSchema(t), zap.NewNop())
	require.NoError(t, err)

	page := newFakePage()
	page.vars["stage"] = float64(0)
	page.vars["count"] = float64(0)

	// Both state 0 and state 1 hold; schema order breaks the tie.
	assert.Equal(t, 0, det.Detect(context.Background(), page, StateNone))
}

func TestDetect_SchemaOrderPriority(t *testing.T) {
	det, err := New(testSchema(t), zap.NewNop())
	require.NoError(t, err)

	page := newFakePage()
	page.vars["stage"] = float64(1)
	page.vars["count"] = float64(20)

	// stage !== 0, count not in [0,15): only state 2 matches.
	assert.Equal(t, 2, det.Detect(context.Background(), page, StateNone))
}

func TestDetect_StickyFallback(t *testing.T) {
	det, err := New(testSchema(t), zap.NewNop())
	require.NoError(t, err)

	// No variables resolvable and no DOM rules hold: previous wins.
	page := newFakePage()
	page.visible["#overloadBanner"] = true // breaks state 0's hidden rule

	assert.Equal(t, 1, det.Detect(context.Background(), page, 1))
	assert.Equal(t, StateNone, det.Detect(context.Background(), page, StateNone))
}

func TestDetect_DOMFallbackOnInconclusive(t *testing.T) {
	det, err := New(testSchema(t), zap.NewNop())
	require.NoError(t, err)

	// Variables unresolvable, but state 1's DOM rule holds.
	page := newFakePage()
	page.visible["#overloadBanner"] = true
	page.classes["#panel"] = "active"

	assert.Equal(t, 1, det.Detect(context.Background(), page, StateNone))
}

func TestDetect_ConclusiveFalseSkipsDOM(t *testing.T) {
	det, err := New(testSchema(t), zap.NewNop())
	require.NoError(t, err)

	// State 1's condition evaluates conclusively false; its DOM rule holding
	// must not resurrect it. State 2's condition matches.
	page := newFakePage()
	page.vars["count"] = float64(20)
	page.vars["stage"] = float64(2)
	page.classes["#panel"] = "active"

	assert.Equal(t, 2, det.Detect(context.Background(), page, StateNone))
}

func TestDetect_DOMOnlyState(t *testing.T) {
	schema := &schemas.StateSchema{
		States: []schemas.StateDefinition{
			{
				ID:   0,
				Name: "Banner",
				DOMDetection: schemas.DOMDetection{
					TextContent: []schemas.TextMatch{{Selector: "#banner", Contains: "Ready"}},
				},
			},
		},
	}
	det, err := New(schema, zap.NewNop())
	require.NoError(t, err)

	page := newFakePage()
	assert.Equal(t, StateNone, det.Detect(context.Background(), page, StateNone))

	page.text["#banner"] = "Ready"
	assert.Equal(t, 0, det.Detect(context.Background(), page, StateNone))
}

func TestDetect_RangeCondition(t *testing.T) {
	det, err := New(testSchema(t), zap.NewNop())
	require.NoError(t, err)
	page := newFakePage()
	page.vars["stage"] = float64(5)

	page.vars["count"] = float64(14)
	assert.Equal(t, 1, det.Detect(context.Background(), page, StateNone))

	page.vars["count"] = float64(15)
	assert.Equal(t, 2, det.Detect(context.Background(), page, StateNone))
}

func TestBindingTable(t *testing.T) {
	b := NewBindingTable()
	b.Bind("stage", 2)
	b.BindObject("app", map[string]interface{}{"count": 7})
	b.BindObject("zzz", map[string]interface{}{"count": 9})

	v, ok := b.Resolve(context.Background(), "stage")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = b.Resolve(context.Background(), "app.count")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	// Bare nested lookup visits sub-objects in name order, so "app" wins
	// over "zzz" deterministically.
	v, ok = b.Resolve(context.Background(), "count")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = b.Resolve(context.Background(), "missing")
	assert.False(t, ok)
	_, ok = b.Resolve(context.Background(), "app.missing")
	assert.False(t, ok)
}
