// internal/detector/condition.go
package detector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// The detection condition language is a small, whitelisted expression
// grammar over named application variables. It is parsed once at schema
// load time and evaluated by this package; condition strings are never
// handed to a script engine.
//
//	expr    := or
//	or      := and ( "||" and )*
//	and     := unary ( "&&" unary )*
//	unary   := "!" unary | compare
//	compare := term ( ("==="|"=="|"!=="|"!="|"<="|">="|"<"|">") term )?
//	term    := NUMBER | STRING | "true" | "false" | "null" | IDENT | "(" expr ")"
//
// Identifiers may be dotted (e.g. "app.stage"); the whole dotted path is
// treated as one variable name and handed to the resolver.
//
// Note that "!" takes a whole comparison as its operand, so "!a === 0"
// parses as "!(a === 0)". JavaScript reads the same text as "(!a) === 0".
// Conditions written in JS idiom should avoid leading "!" on comparisons
// and parenthesize explicitly, or use "a !== 0".

// ErrUnresolved reports that a referenced variable could not be resolved.
// The detector treats it as "not determined by variables" and falls through
// to DOM detection for the same state.
var ErrUnresolved = errors.New("variable unresolved")

// LookupFunc resolves a variable name to a value. The boolean result
// mirrors VariableResolver.Resolve.
type LookupFunc func(name string) (interface{}, bool)

// Condition is a parsed detection condition.
type Condition struct {
	src  string
	root condNode
	vars []string
}

// ParseCondition parses src into an evaluable Condition.
func ParseCondition(src string) (*Condition, error) {
	toks, err := lexCondition(src)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", src, err)
	}
	p := &condParser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", src, err)
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("condition %q: unexpected %q", src, p.peek().text)
	}
	c := &Condition{src: src, root: root}
	c.vars = collectVars(root, nil)
	return c, nil
}

// Source returns the original condition text.
func (c *Condition) Source() string { return c.src }

// Variables returns every variable name the condition references, in order
// of first appearance.
func (c *Condition) Variables() []string { return c.vars }

// Eval evaluates the condition against lookup. It returns ErrUnresolved
// when any referenced variable is absent, and a type error when operands
// cannot be compared; both are degradation signals, not failures to
// propagate.
func (c *Condition) Eval(lookup LookupFunc) (bool, error) {
	v, err := c.root.eval(lookup)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// -- AST --

type condNode interface {
	eval(lookup LookupFunc) (interface{}, error)
}

type literalNode struct{ value interface{} }

func (n literalNode) eval(LookupFunc) (interface{}, error) { return n.value, nil }

type varNode struct{ name string }

func (n varNode) eval(lookup LookupFunc) (interface{}, error) {
	v, ok := lookup(n.name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolved, n.name)
	}
	return v, nil
}

type notNode struct{ operand condNode }

func (n notNode) eval(lookup LookupFunc) (interface{}, error) {
	v, err := n.operand.eval(lookup)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

type logicalNode struct {
	op          string // "&&" or "||"
	left, right condNode
}

func (n logicalNode) eval(lookup LookupFunc) (interface{}, error) {
	// No short-circuit on resolution: an unresolved variable anywhere in
	// the expression makes the whole condition inconclusive, which is what
	// lets DOM detection take over deterministically.
	lv, err := n.left.eval(lookup)
	if err != nil {
		return nil, err
	}
	rv, err := n.right.eval(lookup)
	if err != nil {
		return nil, err
	}
	if n.op == "&&" {
		return truthy(lv) && truthy(rv), nil
	}
	return truthy(lv) || truthy(rv), nil
}

type compareNode struct {
	op          string
	left, right condNode
}

func (n compareNode) eval(lookup LookupFunc) (interface{}, error) {
	lv, err := n.left.eval(lookup)
	if err != nil {
		return nil, err
	}
	rv, err := n.right.eval(lookup)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "==", "===":
		return looseEqual(lv, rv), nil
	case "!=", "!==":
		return !looseEqual(lv, rv), nil
	}
	lf, lok := toNumber(lv)
	rf, rok := toNumber(rv)
	if !lok || !rok {
		return nil, fmt.Errorf("cannot order %T against %T", lv, rv)
	}
	switch n.op {
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	}
	return nil, fmt.Errorf("unknown operator %q", n.op)
}

func collectVars(n condNode, acc []string) []string {
	switch t := n.(type) {
	case varNode:
		for _, v := range acc {
			if v == t.name {
				return acc
			}
		}
		return append(acc, t.name)
	case notNode:
		return collectVars(t.operand, acc)
	case logicalNode:
		return collectVars(t.right, collectVars(t.left, acc))
	case compareNode:
		return collectVars(t.right, collectVars(t.left, acc))
	}
	return acc
}

// -- value semantics --

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// looseEqual compares numbers numerically and everything else strictly by
// type and value. "5" never equals 5; that kind of coercion is exactly the
// ambiguity the whitelisted grammar exists to avoid.
func looseEqual(a, b interface{}) bool {
	if af, ok := toNumber(a); ok {
		if bf, ok := toNumber(b); ok {
			// Booleans only equal booleans.
			_, aBool := a.(bool)
			_, bBool := b.(bool)
			if aBool != bBool {
				return false
			}
			return af == bf
		}
		return false
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	if a == nil && b == nil {
		return true
	}
	return false
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := toNumber(v); ok {
		return f != 0
	}
	return true
}

// -- lexer --

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

func lexCondition(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case ch == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case ch == '\'' || ch == '"':
			quote := ch
			j := i + 1
			var sb strings.Builder
			for j < len(src) && src[j] != quote {
				if src[j] == '\\' && j+1 < len(src) {
					j++
				}
				sb.WriteByte(src[j])
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, token{tokString, sb.String()})
			i = j + 1
		case strings.ContainsRune("=!<>&|", rune(ch)):
			j := i
			for j < len(src) && strings.ContainsRune("=!<>&|", rune(src[j])) {
				j++
			}
			op := src[i:j]
			switch op {
			case "==", "===", "!=", "!==", "<", "<=", ">", ">=", "&&", "||", "!":
				toks = append(toks, token{tokOp, op})
			default:
				// Runs of bangs ("!!flag") lex as individual negations.
				if strings.Trim(op, "!") == "" {
					for range op {
						toks = append(toks, token{tokOp, "!"})
					}
					i = j
					continue
				}
				return nil, fmt.Errorf("unknown operator %q", op)
			}
			i = j
		case ch >= '0' && ch <= '9' || ch == '.':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			if _, err := strconv.ParseFloat(src[i:j], 64); err != nil {
				return nil, fmt.Errorf("bad number %q", src[i:j])
			}
			toks = append(toks, token{tokNumber, src[i:j]})
			i = j
		case unicode.IsLetter(rune(ch)) || ch == '_' || ch == '$':
			j := i
			for j < len(src) {
				r := rune(src[j])
				if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$' || r == '.' {
					j++
					continue
				}
				break
			}
			toks = append(toks, token{tokIdent, src[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", string(ch))
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}

// -- parser --

type condParser struct {
	toks []token
	pos  int
}

func (p *condParser) peek() token { return p.toks[p.pos] }

func (p *condParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *condParser) atEnd() bool { return p.peek().kind == tokEOF }

func (p *condParser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *condParser) parseOr() (condNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = logicalNode{op: "||", left: left, right: right}
	}
}

func (p *condParser) parseAnd() (condNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = logicalNode{op: "&&", left: left, right: right}
	}
}

func (p *condParser) parseUnary() (condNode, error) {
	if _, ok := p.acceptOp("!"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{operand: operand}, nil
	}
	return p.parseCompare()
}

func (p *condParser) parseCompare() (condNode, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp("===", "==", "!==", "!=", "<=", ">=", "<", ">")
	if !ok {
		return left, nil
	}
	right, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return compareNode{op: op, left: left, right: right}, nil
}

func (p *condParser) parseTerm() (condNode, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		f, _ := strconv.ParseFloat(t.text, 64)
		return literalNode{value: f}, nil
	case tokString:
		return literalNode{value: t.text}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return literalNode{value: true}, nil
		case "false":
			return literalNode{value: false}, nil
		case "null", "undefined":
			return literalNode{value: nil}, nil
		}
		return varNode{name: t.text}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected token %q", t.text)
}
