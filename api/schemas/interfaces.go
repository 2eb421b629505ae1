// api/schemas/interfaces.go
package schemas

import "context"

// VariableResolver resolves named application variables from a live page
// context. Resolve returns the value and true when the name could be
// resolved; any resolution failure is reported as (nil, false), never as an
// error, because the detection path is designed to degrade rather than
// throw.
//
// The page-backed implementation checks the immediate global scope first
// and then searches one level into every enumerable object reachable from
// it. Enumeration order of global properties is engine-defined, so when the
// same name exists nested under two different globals the result is not
// guaranteed deterministic. Known limitation, documented on purpose.
type VariableResolver interface {
	Resolve(ctx context.Context, name string) (interface{}, bool)
}

// DOMInspector answers the four markup predicates used by DOM-based state
// detection. Implementations must treat any query failure as a negative
// answer.
type DOMInspector interface {
	IsVisible(ctx context.Context, selector string) bool
	IsHidden(ctx context.Context, selector string) bool
	HasClass(ctx context.Context, selector, class string) bool
	TextContains(ctx context.Context, selector, substring string) bool
}

// PageContext is the full set of page capabilities the detector and the
// snapshot store need. Exactly one page backs a PageContext; no operation
// here is designed for concurrent multi-page use.
type PageContext interface {
	VariableResolver
	DOMInspector

	// InnerHTML returns the serialized markup of the first element matching
	// selector.
	InnerHTML(ctx context.Context, selector string) (string, error)
	// SetInnerHTML overwrites the markup of the first element matching
	// selector. A full overwrite, never an incremental delta.
	SetInnerHTML(ctx context.Context, selector, html string) error
	// SetVariable injects value into the page's global scope under name
	// using a structured encoding, never source-text concatenation.
	SetVariable(ctx context.Context, name string, value interface{}) error
	// SetText replaces the text content of the first element matching
	// selector.
	SetText(ctx context.Context, selector, text string) error
}
