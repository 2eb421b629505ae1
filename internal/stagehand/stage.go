// internal/stagehand/stage.go
package stagehand

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/stagehand/api/schemas"
)

// StageInfo is the offline view of one captured stage.
type StageInfo struct {
	SessionID   string
	StateID     int
	StateName   string
	Variables   map[string]interface{}
	Counter     *float64
	CapturedAt  float64
	Elements    int
	Interactive []string
	TextPreview string
}

// ExtractStage loads a captured stage and inspects its markup without a
// browser: element counts, the interactive elements a test could drive,
// and a text preview.
func (s *Service) ExtractStage(sessionID string, stageID int) (*StageInfo, error) {
	snap, err := s.store.Load(sessionID, stageID)
	if err != nil {
		return nil, err
	}

	info := &StageInfo{
		SessionID:  snap.SessionID,
		StateID:    snap.StateID,
		Variables:  snap.Variables,
		Counter:    snap.Counter,
		CapturedAt: snap.CapturedAt,
	}

	if schema, schemaErr := schemas.LoadStateSchema(s.cfg.Storage.SchemaPath); schemaErr == nil {
		if st, ok := schema.StateByID(stageID); ok {
			info.StateName = st.Name
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.DOM))
	if err != nil {
		return nil, fmt.Errorf("parsing stage markup: %w", err)
	}
	// The document parser wraps the fragment in html/body; count only the
	// fragment's own elements.
	info.Elements = doc.Find("body *").Length()
	doc.Find("button, a, input, select, textarea, [onclick]").Each(func(_ int, sel *goquery.Selection) {
		info.Interactive = append(info.Interactive, describeElement(sel))
	})
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if runes := []rune(text); len(runes) > 200 {
		text = string(runes[:200]) + "..."
	}
	info.TextPreview = text
	return info, nil
}

// describeElement renders a short, selector-like description of one node.
func describeElement(sel *goquery.Selection) string {
	name := goquery.NodeName(sel)
	if id, ok := sel.Attr("id"); ok && id != "" {
		return name + "#" + id
	}
	if class, ok := sel.Attr("class"); ok && class != "" {
		return name + "." + strings.Join(strings.Fields(class), ".")
	}
	return name
}

// RestoreStage loads target in a fresh page and injects a captured stage
// into it, skipping the interaction that normally leads there. The browser
// stays open for the configured hold duration so tests can run against the
// restored state.
func (s *Service) RestoreStage(ctx context.Context, sessionID string, stageID int, target string) error {
	runID := uuid.NewString()
	log := s.log.With(zap.String("run_id", runID))

	schema, err := schemas.LoadStateSchema(s.cfg.Storage.SchemaPath)
	if err != nil {
		return err
	}
	snap, err := s.store.Load(sessionID, stageID)
	if err != nil {
		return err
	}

	page, cleanup, err := s.openPage(ctx, target)
	if err != nil {
		return err
	}
	defer cleanup()

	// The page's own startup timers would race the injected state. Quiesce
	// first, then restore.
	if err := page.ClearTimers(ctx); err != nil {
		log.Debug("Clearing startup timers failed", zap.Error(err))
	}
	if err := s.store.Restore(ctx, page, schema, snap); err != nil {
		return err
	}

	log.Info("Stage restored, holding browser open",
		zap.String("session", sessionID),
		zap.Int("stage", stageID),
		zap.Duration("hold_open", s.cfg.Replay.HoldOpen))
	holdOpen(ctx, s.cfg.Replay.HoldOpen)
	return nil
}
