// internal/recorder/recorder.go
// Package recorder drives a recording session: it polls the in-page event
// buffer, samples the application state, and captures stage snapshots on
// state transitions.
package recorder

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/stagehand/api/schemas"
	"github.com/xkilldash9x/stagehand/internal/config"
	"github.com/xkilldash9x/stagehand/internal/detector"
	"github.com/xkilldash9x/stagehand/internal/snapshot"
)

// PageConn is the recorder's view of the driven page. DrainEvents and
// StopRequested are poll-tick operations; an error from either means the
// page is gone and the session ends with whatever was collected so far.
type PageConn interface {
	schemas.PageContext

	// DrainEvents returns and clears the events buffered since the last
	// drain, in capture order.
	DrainEvents(ctx context.Context) ([]schemas.Event, error)
	// StopRequested reports whether the in-page stop chord was pressed.
	StopRequested(ctx context.Context) (bool, error)
}

// Controller runs recording sessions. The detector and snapshot store are
// optional; without them the controller is a plain event recorder.
type Controller struct {
	cfg   config.RecorderConfig
	det   *detector.Detector
	store *snapshot.Store
	log   *zap.Logger
}

// NewController creates a recording controller. det and store may be nil.
func NewController(cfg config.RecorderConfig, det *detector.Detector, store *snapshot.Store, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{cfg: cfg, det: det, store: store, log: logger.Named("recorder")}
}

// Record polls page until the stop chord is pressed, ctx is canceled, or
// the page goes away. Stop is cooperative: the chord takes effect on the
// next poll tick, and events buffered up to that tick are included. The
// returned session is valid in every exit path; only the reasons differ.
func (c *Controller) Record(ctx context.Context, page PageConn, sessionID, target string) (*schemas.RecordingSession, error) {
	session := &schemas.RecordingSession{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Target:    target,
		Events:    []schemas.Event{},
	}
	start := time.Now()

	currentState := detector.StateNone
	limiter := rate.NewLimiter(rate.Every(c.cfg.PollInterval), 1)

	c.log.Info("Recording started",
		zap.String("session", sessionID),
		zap.String("target", target),
		zap.Duration("poll_interval", c.cfg.PollInterval))

	pageGone := false
	for {
		if err := limiter.Wait(ctx); err != nil {
			c.log.Info("Recording interrupted", zap.String("session", sessionID))
			break
		}

		events, err := page.DrainEvents(ctx)
		if err != nil {
			// Closed tab or crashed renderer. Whatever was drained before
			// this tick is the session.
			c.log.Warn("Page unavailable, ending session", zap.Error(err))
			pageGone = true
			break
		}
		session.Events = append(session.Events, events...)

		stop, err := page.StopRequested(ctx)
		if err != nil {
			c.log.Warn("Page unavailable, ending session", zap.Error(err))
			pageGone = true
			break
		}
		if stop {
			c.log.Info("Stop chord received", zap.String("session", sessionID))
			break
		}

		c.sampleState(ctx, page, sessionID, &currentState, start)
	}

	if !pageGone {
		// Final authoritative drain: events raised between the last tick and
		// the stop decision still belong to the session.
		drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if events, err := page.DrainEvents(drainCtx); err == nil {
			session.Events = append(session.Events, events...)
		}
		cancel()
	}

	session.DurationSeconds = time.Since(start).Seconds()
	c.log.Info("Recording finished",
		zap.String("session", sessionID),
		zap.Int("events", len(session.Events)),
		zap.Float64("duration_s", session.DurationSeconds))
	return session, nil
}

// sampleState runs one detection pass and captures a snapshot when the
// state changed. Re-entering a stage later in the same session overwrites
// the earlier snapshot; the freshest entry wins.
func (c *Controller) sampleState(ctx context.Context, page PageConn, sessionID string, current *int, start time.Time) {
	if c.det == nil {
		return
	}
	next := c.det.Detect(ctx, page, *current)
	if next == *current {
		return
	}
	c.log.Info("State transition",
		zap.Int("from", *current), zap.Int("to", next), zap.String("session", sessionID))
	*current = next

	if !c.cfg.CaptureSnapshots || c.store == nil {
		return
	}
	offset := time.Since(start).Seconds()
	snap, err := c.store.Capture(ctx, page, c.det.Schema(), sessionID, next, offset)
	if err != nil {
		c.log.Warn("Snapshot capture failed", zap.Int("state", next), zap.Error(err))
		return
	}
	if err := c.store.Save(snap); err != nil {
		c.log.Warn("Snapshot save failed", zap.Int("state", next), zap.Error(err))
	}
}
