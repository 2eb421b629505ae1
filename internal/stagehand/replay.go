// internal/stagehand/replay.go
package stagehand

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stagehand/api/schemas"
	"github.com/xkilldash9x/stagehand/internal/replayer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReplayOptions parameterizes one replay run.
type ReplayOptions struct {
	// Path names either a raw recording or a converted action script; the
	// file's own shape decides which replay mode runs.
	Path string
	// Target overrides the page to replay against. Recordings carry their
	// own target; scripts fall back to their source recording's.
	Target string
	// HoldOpen keeps the browser alive after the last action so the final
	// application state can be inspected.
	HoldOpen bool
}

// Replay re-executes a recording or script against a live page.
func (s *Service) Replay(ctx context.Context, opts ReplayOptions) (*replayer.Result, error) {
	runID := uuid.NewString()
	log := s.log.With(zap.String("run_id", runID))

	session, script, err := loadReplayable(opts.Path)
	if err != nil {
		return nil, err
	}

	target := opts.Target
	if target == "" {
		if session != nil {
			target = session.Target
		} else {
			target, err = s.scriptTarget(script)
			if err != nil {
				return nil, err
			}
		}
	}
	if target == "" {
		return nil, fmt.Errorf("no replay target: pass one explicitly")
	}

	page, cleanup, err := s.openPage(ctx, target)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	rep := replayer.New(s.cfg.Replay, log)
	var res *replayer.Result
	if session != nil {
		res, err = rep.ReplayEvents(ctx, page, session)
	} else {
		res, err = rep.ReplayScript(ctx, page, script)
	}
	if err != nil {
		return res, err
	}

	if opts.HoldOpen {
		log.Info("Replay complete, holding browser open",
			zap.Duration("hold_open", s.cfg.Replay.HoldOpen))
		holdOpen(ctx, s.cfg.Replay.HoldOpen)
	}
	return res, nil
}

// loadReplayable opens path and decides whether it is a raw recording or a
// converted script by its top-level shape. Exactly one return value is
// non-nil on success.
func loadReplayable(path string) (*schemas.RecordingSession, *schemas.ActionScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var probe map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if _, ok := probe["events"]; ok {
		var session schemas.RecordingSession
		if err := json.Unmarshal(data, &session); err != nil {
			return nil, nil, fmt.Errorf("parsing recording %s: %w", path, err)
		}
		return &session, nil, nil
	}
	if _, ok := probe["actions"]; ok {
		var script schemas.ActionScript
		if err := json.Unmarshal(data, &script); err != nil {
			return nil, nil, fmt.Errorf("parsing script %s: %w", path, err)
		}
		return nil, &script, nil
	}
	return nil, nil, fmt.Errorf("%s is neither a recording nor an action script", path)
}

// scriptTarget recovers the replay target from the script's source
// recording, when it is still on disk.
func (s *Service) scriptTarget(script *schemas.ActionScript) (string, error) {
	if script.SourceRecording == "" {
		return "", nil
	}
	path := filepath.Join(s.cfg.Storage.RecordingsDir, script.SourceRecording+".json")
	session, err := schemas.LoadRecording(path)
	if err != nil {
		s.log.Debug("Source recording unavailable for target lookup",
			zap.String("path", path), zap.Error(err))
		return "", nil
	}
	return session.Target, nil
}

func holdOpen(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
