// internal/snapshot/store.go
// Package snapshot captures per-stage page state and restores it into a
// freshly loaded page, bypassing normal application progression.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/stagehand/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound reports that no snapshot exists for the requested session and
// stage. Callers surface it with the capture hint; nothing retries on it.
var ErrNotFound = errors.New("snapshot not found")

const manifestFile = "metadata.json"

// Store persists snapshots under <root>/<session>/stage_<id>.json and keeps
// a per-session manifest alongside them.
type Store struct {
	root string
	log  *zap.Logger
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{root: dir, log: logger.Named("snapshot")}
}

// Root returns the store's base directory.
func (s *Store) Root() string { return s.root }

// Capture reads everything a snapshot needs from the live page: every
// resolvable key variable, the content container markup, and the counter
// when the schema names one. Unresolvable variables are skipped, not
// errored; a snapshot records what the page could tell us.
func (s *Store) Capture(ctx context.Context, page schemas.PageContext, schema *schemas.StateSchema, sessionID string, stateID int, offset float64) (*schemas.Snapshot, error) {
	snap := &schemas.Snapshot{
		SessionID:  sessionID,
		StateID:    stateID,
		Variables:  make(map[string]interface{}),
		CapturedAt: offset,
	}

	for _, name := range schema.KeyVariableNames() {
		v, ok := page.Resolve(ctx, name)
		if !ok {
			s.log.Debug("Key variable unresolvable at capture", zap.String("variable", name), zap.Int("state", stateID))
			continue
		}
		snap.Variables[name] = v
	}

	dom, err := page.InnerHTML(ctx, schema.ContentSelector())
	if err != nil {
		return nil, fmt.Errorf("capturing content markup for state %d: %w", stateID, err)
	}
	snap.DOM = dom

	if counter := schema.Metadata.PrimaryCounter; counter != "" {
		if v, ok := snap.Variables[counter]; ok {
			if f, ok := toFloat(v); ok {
				snap.Counter = &f
			}
		}
	}
	return snap, nil
}

// Save writes snap to disk and rewrites the session manifest. Saving the
// same (session, state) pair again overwrites the earlier file; the latest
// entry into a stage is the one worth keeping.
func (s *Store) Save(snap *schemas.Snapshot) error {
	dir := filepath.Join(s.root, snap.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	path := filepath.Join(dir, stageFile(snap.StateID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := s.rewriteManifest(snap.SessionID); err != nil {
		return err
	}
	s.log.Info("Snapshot saved", zap.String("session", snap.SessionID), zap.Int("stage", snap.StateID), zap.String("path", path))
	return nil
}

// Load reads the snapshot for one stage of one session.
func (s *Store) Load(sessionID string, stateID int) (*schemas.Snapshot, error) {
	path := filepath.Join(s.root, sessionID, stageFile(stateID))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: session %q has no snapshot for stage %d; record the session with snapshot capture enabled first", ErrNotFound, sessionID, stateID)
		}
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	var snap schemas.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// Manifest returns the manifest for sessionID.
func (s *Store) Manifest(sessionID string) (*schemas.SnapshotManifest, error) {
	path := filepath.Join(s.root, sessionID, manifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: session %q has no snapshots", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	var m schemas.SnapshotManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// Sessions lists every session directory that carries a manifest, sorted.
func (s *Store) Sessions() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshot root %s: %w", s.root, err)
	}
	var sessions []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), manifestFile)); err == nil {
			sessions = append(sessions, e.Name())
		}
	}
	sort.Strings(sessions)
	return sessions, nil
}

// Restore pushes a snapshot into a freshly loaded page: every captured
// variable first, then a full overwrite of the content container, then the
// counter display. Idempotent; restoring the same snapshot twice leaves the
// page in the same end state.
func (s *Store) Restore(ctx context.Context, page schemas.PageContext, schema *schemas.StateSchema, snap *schemas.Snapshot) error {
	names := make([]string, 0, len(snap.Variables))
	for name := range snap.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := page.SetVariable(ctx, name, snap.Variables[name]); err != nil {
			return fmt.Errorf("restoring variable %q: %w", name, err)
		}
	}

	if err := page.SetInnerHTML(ctx, schema.ContentSelector(), snap.DOM); err != nil {
		return fmt.Errorf("restoring content markup: %w", err)
	}

	if snap.Counter != nil {
		if err := page.SetText(ctx, schema.CounterSelector(), formatCounter(*snap.Counter)); err != nil {
			return fmt.Errorf("restoring counter display: %w", err)
		}
	}

	s.log.Info("Snapshot restored", zap.String("session", snap.SessionID), zap.Int("stage", snap.StateID))
	return nil
}

// Inspect parses the snapshot's captured markup and reports element and
// text statistics. Purely offline; used by stage listing and extraction to
// sanity-check what a restore would inject.
func Inspect(snap *schemas.Snapshot) (elements int, textLen int, err error) {
	nodes, err := html.ParseFragment(strings.NewReader(snap.DOM), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("parsing snapshot markup: %w", err)
	}
	var walk func(*html.Node)
	for _, n := range nodes {
		walk = func(n *html.Node) {
			switch n.Type {
			case html.ElementNode:
				elements++
			case html.TextNode:
				textLen += len(strings.TrimSpace(n.Data))
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(n)
	}
	return elements, textLen, nil
}

func (s *Store) rewriteManifest(sessionID string) error {
	dir := filepath.Join(s.root, sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing session directory: %w", err)
	}
	var stages []int
	for _, e := range entries {
		var id int
		if _, err := fmt.Sscanf(e.Name(), "stage_%d.json", &id); err == nil {
			stages = append(stages, id)
		}
	}
	sort.Ints(stages)
	m := schemas.SnapshotManifest{
		SessionID:      sessionID,
		StagesCaptured: len(stages),
		StageNumbers:   stages,
	}
	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

func stageFile(stateID int) string {
	return fmt.Sprintf("stage_%d.json", stateID)
}

func formatCounter(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
