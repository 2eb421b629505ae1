// internal/detector/resolver.go
package detector

import (
	"context"
	"sort"
	"strings"
)

// BindingTable is a VariableResolver over an explicit, registered set of
// variables. Lookup order is documented and bounded: the direct table
// first, then one level into each registered sub-object, visited in
// lexicographic name order so resolution stays deterministic even when the
// same variable name exists under two different sub-objects.
//
// This is the preferred binding mode for typed targets; the page-backed
// resolver in internal/browser covers applications that never registered
// their state variables.
type BindingTable struct {
	direct map[string]interface{}
	nested map[string]map[string]interface{}
}

// NewBindingTable creates an empty binding table.
func NewBindingTable() *BindingTable {
	return &BindingTable{
		direct: make(map[string]interface{}),
		nested: make(map[string]map[string]interface{}),
	}
}

// Bind registers a directly addressable variable.
func (b *BindingTable) Bind(name string, value interface{}) {
	b.direct[name] = value
}

// BindObject registers a named sub-object whose properties participate in
// one-level nested lookup.
func (b *BindingTable) BindObject(name string, fields map[string]interface{}) {
	b.nested[name] = fields
}

// Resolve implements schemas.VariableResolver. Dotted names address a
// registered sub-object property explicitly; bare names fall back to the
// nested search.
func (b *BindingTable) Resolve(_ context.Context, name string) (interface{}, bool) {
	if obj, field, ok := strings.Cut(name, "."); ok {
		fields, present := b.nested[obj]
		if !present {
			return nil, false
		}
		v, present := fields[field]
		return v, present
	}
	if v, ok := b.direct[name]; ok {
		return v, true
	}
	keys := make([]string, 0, len(b.nested))
	for k := range b.nested {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := b.nested[k][name]; ok {
			return v, true
		}
	}
	return nil, false
}
