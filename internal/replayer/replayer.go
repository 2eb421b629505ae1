// internal/replayer/replayer.go
// Package replayer re-executes recorded sessions and converted action
// scripts against a live page with timing fidelity.
package replayer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stagehand/api/schemas"
	"github.com/xkilldash9x/stagehand/internal/config"
)

// Executor is the replayer's view of the driven page. Every method reports
// failure for its own event only; Alive distinguishes a dead page from a
// merely failed interaction.
type Executor interface {
	// SemanticClick resolves selector and clicks the element. The
	// implementation bounds resolution with the configured click timeout.
	SemanticClick(ctx context.Context, selector string) error
	// ClickAt dispatches a raw click at viewport coordinates.
	ClickAt(ctx context.Context, x, y float64) error
	ScrollTo(ctx context.Context, x, y float64) error
	KeyPress(ctx context.Context, key string) error
	MouseMove(ctx context.Context, x, y float64) error
	// ClearTimers cancels pending page timers so a replayed session does not
	// keep mutating state after the last action.
	ClearTimers(ctx context.Context) error
	// Alive reports whether the page is still reachable.
	Alive(ctx context.Context) bool
}

// Result summarizes one replay run.
type Result struct {
	Executed int
	Failed   int
	Duration time.Duration
}

// Replayer executes recordings and scripts. Speed divides every recorded
// delay; 2.0 replays twice as fast.
type Replayer struct {
	cfg config.ReplayConfig
	log *zap.Logger
}

// New creates a replayer.
func New(cfg config.ReplayConfig, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{cfg: cfg, log: logger.Named("replayer")}
}

// ReplayEvents replays a raw recording on an absolute schedule: each event
// fires when elapsed replay time reaches its recorded offset divided by
// speed. Execution overruns eat into later waits instead of shifting the
// whole schedule, so total replay time tracks the recording.
//
// A failed event is logged and skipped. Only a dead page aborts the run.
func (r *Replayer) ReplayEvents(ctx context.Context, exec Executor, session *schemas.RecordingSession) (*Result, error) {
	r.log.Info("Replaying recording",
		zap.String("session", session.SessionID),
		zap.Int("events", len(session.Events)),
		zap.Float64("speed", r.cfg.Speed))

	res := &Result{}
	start := time.Now()
	for i, ev := range session.Events {
		target := time.Duration(ev.Timestamp / r.cfg.Speed * float64(time.Second))
		if err := sleepUntil(ctx, start, target); err != nil {
			return res, err
		}
		if err := r.dispatchEvent(ctx, exec, ev); err != nil {
			if !exec.Alive(ctx) {
				return res, fmt.Errorf("page lost during replay at event %d: %w", i, err)
			}
			r.log.Warn("Event failed, continuing",
				zap.Int("index", i), zap.String("type", string(ev.Type)), zap.Error(err))
			res.Failed++
			continue
		}
		res.Executed++
	}
	res.Duration = time.Since(start)
	r.finish(ctx, exec, res)
	return res, nil
}

// ReplayScript replays a converted action script sequentially: each
// action's wait is honored after the previous action has fully completed.
func (r *Replayer) ReplayScript(ctx context.Context, exec Executor, script *schemas.ActionScript) (*Result, error) {
	r.log.Info("Replaying script",
		zap.String("source", script.SourceRecording),
		zap.Int("actions", len(script.Actions)),
		zap.Float64("speed", r.cfg.Speed))

	res := &Result{}
	start := time.Now()
	for i, act := range script.Actions {
		if act.Wait > 0 {
			wait := time.Duration(act.Wait / r.cfg.Speed * float64(time.Second))
			if err := sleep(ctx, wait); err != nil {
				return res, err
			}
		}
		if err := r.dispatchAction(ctx, exec, act); err != nil {
			if !exec.Alive(ctx) {
				return res, fmt.Errorf("page lost during replay at action %d: %w", i, err)
			}
			r.log.Warn("Action failed, continuing",
				zap.Int("index", i), zap.String("type", string(act.Type)), zap.Error(err))
			res.Failed++
			continue
		}
		res.Executed++
	}
	res.Duration = time.Since(start)
	r.finish(ctx, exec, res)
	return res, nil
}

func (r *Replayer) dispatchEvent(ctx context.Context, exec Executor, ev schemas.Event) error {
	switch ev.Type {
	case schemas.EventClick:
		return r.click(ctx, exec, ev.Selector, ev.X, ev.Y)
	case schemas.EventScroll:
		return exec.ScrollTo(ctx, ev.ScrollX, ev.ScrollY)
	case schemas.EventKeypress:
		return exec.KeyPress(ctx, ev.Key)
	case schemas.EventMouseMove:
		return exec.MouseMove(ctx, ev.X, ev.Y)
	}
	return fmt.Errorf("unknown event type %q", ev.Type)
}

func (r *Replayer) dispatchAction(ctx context.Context, exec Executor, act schemas.Action) error {
	switch act.Type {
	case schemas.EventClick:
		return r.click(ctx, exec, act.Selector, act.X, act.Y)
	case schemas.EventScroll:
		return exec.ScrollTo(ctx, act.ScrollX, act.ScrollY)
	case schemas.EventKeypress:
		return exec.KeyPress(ctx, act.Key)
	}
	return fmt.Errorf("unknown action type %q", act.Type)
}

// click tries the selector first and falls back to raw coordinates when
// resolution fails or times out. The fallback keeps replay moving against
// pages whose markup drifted since recording.
func (r *Replayer) click(ctx context.Context, exec Executor, selector string, x, y float64) error {
	if selector != "" {
		clickCtx, cancel := context.WithTimeout(ctx, r.cfg.ClickTimeout)
		err := exec.SemanticClick(clickCtx, selector)
		cancel()
		if err == nil {
			return nil
		}
		r.log.Debug("Semantic click failed, falling back to coordinates",
			zap.String("selector", selector), zap.Error(err))
	}
	return exec.ClickAt(ctx, x, y)
}

func (r *Replayer) finish(ctx context.Context, exec Executor, res *Result) {
	if err := exec.ClearTimers(ctx); err != nil {
		r.log.Debug("Clearing page timers failed", zap.Error(err))
	}
	r.log.Info("Replay finished",
		zap.Int("executed", res.Executed),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration))
}

// sleepUntil blocks until target elapsed time since start. A target already
// in the past returns immediately; the schedule never sleeps negative.
func sleepUntil(ctx context.Context, start time.Time, target time.Duration) error {
	return sleep(ctx, target-time.Since(start))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
