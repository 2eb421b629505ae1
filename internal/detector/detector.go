// internal/detector/detector.go
// Package detector identifies which behavioral state a running page is in,
// combining a variable-based primary signal with a DOM-based fallback.
package detector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/stagehand/api/schemas"
)

// StateNone is the sentinel "not yet started" previous-state value callers
// seed before the first Detect call.
const StateNone = -1

// Detector evaluates a validated schema against a live page context. One
// Detector serves one schema; the caller owns the previous-state value and
// threads it through calls, so a single Detector is safe to share across
// sessions.
type Detector struct {
	schema *schemas.StateSchema
	conds  []*Condition // parallel to schema.States; nil when no condition
	log    *zap.Logger
}

// New parses every detection condition up front and returns a ready
// Detector. The schema must already have passed Validate; an unparseable
// condition is a configuration error and fails construction.
func New(schema *schemas.StateSchema, logger *zap.Logger) (*Detector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("state schema failed validation: %w", err)
	}
	conds := make([]*Condition, len(schema.States))
	for i, st := range schema.States {
		if st.DetectionCondition == "" {
			continue
		}
		cond, err := ParseCondition(st.DetectionCondition)
		if err != nil {
			return nil, fmt.Errorf("state %d (%q): %w", st.ID, st.Name, err)
		}
		conds[i] = cond
	}
	return &Detector{schema: schema, conds: conds, log: logger.Named("detector")}, nil
}

// Schema returns the schema this detector serves.
func (d *Detector) Schema() *schemas.StateSchema { return d.schema }

// Detect returns the id of the current state, or previous unchanged when no
// state matches (sticky fallback). States are tried in schema order, and
// that order is the tie-break: the first state whose variable condition
// holds, or whose DOM rules hold when the condition is inconclusive, wins.
//
// Detect never returns an error. Resolution and evaluation failures are
// swallowed and treated as non-matches; the detector degrades, it does not
// throw.
func (d *Detector) Detect(ctx context.Context, page schemas.PageContext, previous int) int {
	lookup := func(name string) (interface{}, bool) {
		return page.Resolve(ctx, name)
	}

	for i, st := range d.schema.States {
		matched, conclusive := d.evalCondition(d.conds[i], lookup)
		if conclusive {
			if matched {
				return st.ID
			}
			// Conclusively false: DOM detection must not override the
			// variables' verdict for this state.
			continue
		}
		if d.evalDOM(ctx, page, st.DOMDetection) {
			d.log.Debug("State matched via DOM fallback",
				zap.Int("state", st.ID), zap.String("name", st.Name))
			return st.ID
		}
	}
	return previous
}

// evalCondition returns (matched, conclusive). A missing condition or any
// resolution/evaluation failure is inconclusive.
func (d *Detector) evalCondition(cond *Condition, lookup LookupFunc) (bool, bool) {
	if cond == nil {
		return false, false
	}
	matched, err := cond.Eval(lookup)
	if err != nil {
		if !errors.Is(err, ErrUnresolved) {
			d.log.Debug("Condition evaluation failed", zap.String("condition", cond.Source()), zap.Error(err))
		}
		return false, false
	}
	return matched, true
}

// evalDOM ANDs the four DOM rule lists. Each individual empty list is
// vacuously true, but a state with no DOM rules at all has no DOM strategy
// and cannot match this way.
func (d *Detector) evalDOM(ctx context.Context, page schemas.DOMInspector, dom schemas.DOMDetection) bool {
	if dom.Empty() {
		return false
	}
	for _, sel := range dom.VisibleElements {
		if !page.IsVisible(ctx, sel) {
			return false
		}
	}
	for _, sel := range dom.HiddenElements {
		if !page.IsHidden(ctx, sel) {
			return false
		}
	}
	for _, cm := range dom.HasClass {
		if !page.HasClass(ctx, cm.Selector, cm.Class) {
			return false
		}
	}
	for _, tm := range dom.TextContent {
		if !page.TextContains(ctx, tm.Selector, tm.Contains) {
			return false
		}
	}
	return true
}
