// internal/stagehand/service.go
// Package stagehand wires the browser, recorder, detector, replayer, and
// snapshot store into the operations the CLI exposes.
package stagehand

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stagehand/api/schemas"
	"github.com/xkilldash9x/stagehand/internal/browser"
	"github.com/xkilldash9x/stagehand/internal/config"
	"github.com/xkilldash9x/stagehand/internal/detector"
	"github.com/xkilldash9x/stagehand/internal/snapshot"
)

// Service is the application facade. One Service per process; each
// operation owns its session state, nothing is shared between runs.
type Service struct {
	cfg   *config.Config
	log   *zap.Logger
	store *snapshot.Store
}

// NewService creates the facade.
func NewService(cfg *config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:   cfg,
		log:   logger.Named("stagehand"),
		store: snapshot.NewStore(cfg.Storage.SnapshotsDir, logger),
	}
}

// Store exposes the snapshot store for inspection commands.
func (s *Service) Store() *snapshot.Store { return s.store }

// loadDetector builds a detector from the configured schema file. Optional:
// a missing schema disables state detection rather than failing the run.
func (s *Service) loadDetector() (*detector.Detector, error) {
	schema, err := schemas.LoadStateSchema(s.cfg.Storage.SchemaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Info("No state schema found, detection disabled",
				zap.String("path", s.cfg.Storage.SchemaPath))
			return nil, nil
		}
		return nil, err
	}
	return detector.New(schema, s.log)
}

// openPage launches a browser, opens a tab, and navigates it to target.
// The caller must invoke the returned shutdown function.
func (s *Service) openPage(ctx context.Context, target string) (*browser.Page, func(), error) {
	mgr, err := browser.NewManager(ctx, s.log, s.cfg.Browser)
	if err != nil {
		return nil, nil, err
	}
	page, err := mgr.NewPage(ctx)
	if err != nil {
		shutdownManager(mgr, s.log)
		return nil, nil, err
	}
	if err := page.Navigate(ctx, target); err != nil {
		page.Close()
		shutdownManager(mgr, s.log)
		return nil, nil, fmt.Errorf("navigating to %q: %w", target, err)
	}
	cleanup := func() {
		page.Close()
		shutdownManager(mgr, s.log)
	}
	return page, cleanup, nil
}

func shutdownManager(mgr *browser.Manager, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil {
		log.Warn("Browser shutdown failed", zap.Error(err))
	}
}

// nextSessionName scans the recordings directory and returns the next
// auto-numbered session name.
func (s *Service) nextSessionName() (string, error) {
	entries, err := os.ReadDir(s.cfg.Storage.RecordingsDir)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("listing recordings dir: %w", err)
	}
	max := 0
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e.Name(), "session_%d.json", &n); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("session_%03d", max+1), nil
}

// ListRecordings returns the recording files on disk, sorted by name.
func (s *Service) ListRecordings() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Storage.RecordingsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing recordings dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListSessions returns every snapshot session on disk.
func (s *Service) ListSessions() ([]string, error) {
	return s.store.Sessions()
}

// ListStages returns the manifest of one snapshot session.
func (s *Service) ListStages(sessionID string) (*schemas.SnapshotManifest, error) {
	return s.store.Manifest(sessionID)
}
