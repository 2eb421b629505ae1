// internal/stagehand/record.go
package stagehand

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/stagehand/api/schemas"
	"github.com/xkilldash9x/stagehand/internal/recorder"
	"github.com/xkilldash9x/stagehand/internal/replayer"
)

// RecordOptions parameterizes one recording run.
type RecordOptions struct {
	// Target is the page to record: a URL or a local file path.
	Target string
	// SessionName overrides the auto-numbered session name.
	SessionName string
	// ScriptPath, when set, replays a converted action script against the
	// page while recording, producing a reproducible session without a
	// human at the keyboard. Recording continues after the script finishes
	// until the stop chord or ctx cancellation.
	ScriptPath string
	// CaptureSnapshots enables per-stage snapshot capture on top of the
	// configured default.
	CaptureSnapshots bool
}

// RecordResult reports where a finished session landed.
type RecordResult struct {
	Session *schemas.RecordingSession
	Path    string
}

// Record runs a full recording session end to end: browser up, capture
// script in, poll until stopped, session to disk.
func (s *Service) Record(ctx context.Context, opts RecordOptions) (*RecordResult, error) {
	sessionName := opts.SessionName
	if sessionName == "" {
		var err error
		if sessionName, err = s.nextSessionName(); err != nil {
			return nil, err
		}
	}

	det, err := s.loadDetector()
	if err != nil {
		return nil, err
	}

	var script *schemas.ActionScript
	if opts.ScriptPath != "" {
		if script, err = schemas.LoadActionScript(opts.ScriptPath); err != nil {
			return nil, err
		}
	}

	page, cleanup, err := s.openPage(ctx, opts.Target)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	captureScript, err := recorder.RenderCaptureScript(s.cfg.Recorder)
	if err != nil {
		return nil, err
	}
	if err := page.InjectCaptureScript(ctx, captureScript); err != nil {
		return nil, err
	}

	recCfg := s.cfg.Recorder
	if opts.CaptureSnapshots {
		recCfg.CaptureSnapshots = true
	}
	ctrl := recorder.NewController(recCfg, det, s.store, s.log)

	var session *schemas.RecordingSession
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var recErr error
		session, recErr = ctrl.Record(gctx, page, sessionName, opts.Target)
		return recErr
	})
	if script != nil {
		g.Go(func() error {
			rep := replayer.New(s.cfg.Replay, s.log)
			if _, repErr := rep.ReplayScript(gctx, page, script); repErr != nil {
				// The recording is still valid; the script just stopped
				// driving it.
				s.log.Warn("Scripted input ended early", zap.Error(repErr))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.cfg.Storage.RecordingsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating recordings dir: %w", err)
	}
	path := filepath.Join(s.cfg.Storage.RecordingsDir, sessionName+".json")
	if err := session.Save(path); err != nil {
		return nil, err
	}
	s.log.Info("Session saved", zap.String("path", path), zap.Int("events", len(session.Events)))
	return &RecordResult{Session: session, Path: path}, nil
}
