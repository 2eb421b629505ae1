// internal/replayer/replayer_test.go
package replayer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stagehand/api/schemas"
	"github.com/xkilldash9x/stagehand/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	op       string
	selector string
	x, y     float64
	key      string
}

// mockExecutor records every dispatched interaction and can be scripted to
// fail specific operations.
type mockExecutor struct {
	calls       []call
	failOps     map[string]error
	dead        bool
	clearCalled int
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{failOps: make(map[string]error)}
}

func (m *mockExecutor) record(c call) { m.calls = append(m.calls, c) }

func (m *mockExecutor) SemanticClick(_ context.Context, selector string) error {
	if err := m.failOps["semantic_click"]; err != nil {
		return err
	}
	m.record(call{op: "semantic_click", selector: selector})
	return nil
}

func (m *mockExecutor) ClickAt(_ context.Context, x, y float64) error {
	if err := m.failOps["click_at"]; err != nil {
		return err
	}
	m.record(call{op: "click_at", x: x, y: y})
	return nil
}

func (m *mockExecutor) ScrollTo(_ context.Context, x, y float64) error {
	if err := m.failOps["scroll"]; err != nil {
		return err
	}
	m.record(call{op: "scroll", x: x, y: y})
	return nil
}

func (m *mockExecutor) KeyPress(_ context.Context, key string) error {
	if err := m.failOps["key"]; err != nil {
		return err
	}
	m.record(call{op: "key", key: key})
	return nil
}

func (m *mockExecutor) MouseMove(_ context.Context, x, y float64) error {
	if err := m.failOps["move"]; err != nil {
		return err
	}
	m.record(call{op: "move", x: x, y: y})
	return nil
}

func (m *mockExecutor) ClearTimers(context.Context) error {
	m.clearCalled++
	return nil
}

func (m *mockExecutor) Alive(context.Context) bool { return !m.dead }

func testConfig() config.ReplayConfig {
	return config.ReplayConfig{
		ClickTimeout: 200 * time.Millisecond,
		Speed:        1.0,
	}
}

func TestReplayEvents_DispatchOrder(t *testing.T) {
	exec := newMockExecutor()
	rep := New(testConfig(), zap.NewNop())

	session := &schemas.RecordingSession{
		SessionID: "s",
		Events: []schemas.Event{
			{Type: schemas.EventClick, Selector: "#a", X: 1, Y: 2, Timestamp: 0},
			{Type: schemas.EventScroll, ScrollX: 0, ScrollY: 300, Timestamp: 0.01},
			{Type: schemas.EventKeypress, Key: "Enter", Timestamp: 0.02},
			{Type: schemas.EventMouseMove, X: 5, Y: 6, Timestamp: 0.03},
		},
	}

	res, err := rep.ReplayEvents(context.Background(), exec, session)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Executed)
	assert.Zero(t, res.Failed)

	require.Len(t, exec.calls, 4)
	assert.Equal(t, "semantic_click", exec.calls[0].op)
	assert.Equal(t, "scroll", exec.calls[1].op)
	assert.Equal(t, "key", exec.calls[2].op)
	assert.Equal(t, "move", exec.calls[3].op)
	assert.Equal(t, 1, exec.clearCalled)
}

func TestReplayEvents_AbsoluteSchedule(t *testing.T) {
	exec := newMockExecutor()
	cfg := testConfig()
	cfg.Speed = 2.0
	rep := New(cfg, zap.NewNop())

	session := &schemas.RecordingSession{
		Events: []schemas.Event{
			{Type: schemas.EventClick, Selector: "#a", Timestamp: 0},
			{Type: schemas.EventClick, Selector: "#b", Timestamp: 1.0},
		},
	}

	start := time.Now()
	res, err := rep.ReplayEvents(context.Background(), exec, session)
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Executed)

	// 1.0s of recorded time at 2x speed is ~500ms of replay time.
	assert.InDelta(t, 500, float64(elapsed.Milliseconds()), 150)
}

func TestReplayScript_SequentialWaits(t *testing.T) {
	exec := newMockExecutor()
	cfg := testConfig()
	cfg.Speed = 2.0
	rep := New(cfg, zap.NewNop())

	script := &schemas.ActionScript{
		Actions: []schemas.Action{
			{Type: schemas.EventClick, Selector: "#a"},
			{Type: schemas.EventClick, Selector: "#b", Wait: 1.0},
		},
	}

	start := time.Now()
	res, err := rep.ReplayScript(context.Background(), exec, script)
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Executed)
	assert.InDelta(t, 500, float64(elapsed.Milliseconds()), 150)
}

func TestReplay_CoordinateFallback(t *testing.T) {
	exec := newMockExecutor()
	exec.failOps["semantic_click"] = errors.New("no node for selector")
	rep := New(testConfig(), zap.NewNop())

	session := &schemas.RecordingSession{
		Events: []schemas.Event{
			{Type: schemas.EventClick, Selector: "#gone", X: 42, Y: 24, Timestamp: 0},
		},
	}

	res, err := rep.ReplayEvents(context.Background(), exec, session)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Executed)

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "click_at", exec.calls[0].op)
	assert.Equal(t, 42.0, exec.calls[0].x)
}

func TestReplay_ClickWithoutSelectorGoesStraightToCoordinates(t *testing.T) {
	exec := newMockExecutor()
	rep := New(testConfig(), zap.NewNop())

	script := &schemas.ActionScript{
		Actions: []schemas.Action{{Type: schemas.EventClick, X: 7, Y: 8}},
	}

	_, err := rep.ReplayScript(context.Background(), exec, script)
	require.NoError(t, err)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, "click_at", exec.calls[0].op)
}

func TestReplay_FailedEventIsSkipped(t *testing.T) {
	exec := newMockExecutor()
	exec.failOps["key"] = errors.New("nothing focused")
	rep := New(testConfig(), zap.NewNop())

	session := &schemas.RecordingSession{
		Events: []schemas.Event{
			{Type: schemas.EventKeypress, Key: "a", Timestamp: 0},
			{Type: schemas.EventScroll, ScrollY: 10, Timestamp: 0.01},
		},
	}

	res, err := rep.ReplayEvents(context.Background(), exec, session)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Executed)
	assert.Equal(t, 1, res.Failed)
}

func TestReplay_DeadPageAborts(t *testing.T) {
	exec := newMockExecutor()
	exec.failOps["scroll"] = errors.New("target closed")
	exec.dead = true
	rep := New(testConfig(), zap.NewNop())

	session := &schemas.RecordingSession{
		Events: []schemas.Event{
			{Type: schemas.EventScroll, ScrollY: 10, Timestamp: 0},
			{Type: schemas.EventScroll, ScrollY: 20, Timestamp: 0.01},
		},
	}

	_, err := rep.ReplayEvents(context.Background(), exec, session)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page lost")
}

func TestReplay_ContextCancellation(t *testing.T) {
	exec := newMockExecutor()
	rep := New(testConfig(), zap.NewNop())

	session := &schemas.RecordingSession{
		Events: []schemas.Event{
			{Type: schemas.EventClick, Selector: "#a", Timestamp: 0},
			{Type: schemas.EventClick, Selector: "#b", Timestamp: 30},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := rep.ReplayEvents(ctx, exec, session)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
