// Package condition evaluates the small boolean expressions attached to
// conditional field insertions, for example
//
//	has_vat == true
//	invoice_amount > 0 && category != "services"
//	!(status == 'closed')
//
// Identifiers resolve against the string values of the section being
// edited. Number comparisons use decimal arithmetic, bool comparisons accept
// the usual strconv spellings, and a bare identifier is true when its value
// is non-empty and not "false" or "0".
package condition

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Values are the field values visible to an expression.
type Values map[string]string

// Expr is a compiled expression.
type Expr struct {
	source string
	root   node
}

// String returns the source text.
func (e *Expr) String() string { return e.source }

// Eval evaluates the expression. The empty expression is always true.
func (e *Expr) Eval(values Values) (bool, error) {
	if e == nil || e.root == nil {
		return true, nil
	}
	return e.root.eval(values)
}

// Compile parses source.
func Compile(source string) (*Expr, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return &Expr{}, nil
	}
	tokens, err := lex(trimmed)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("condition: unexpected %q at %d", p.peek().text, p.peek().pos)
	}
	return &Expr{source: trimmed, root: root}, nil
}

// Evaluator compiles expressions once and reuses them.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*Expr
}

// New creates an Evaluator.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]*Expr)}
}

// Eval compiles source (cached) and evaluates it against values.
func (e *Evaluator) Eval(source string, values Values) (bool, error) {
	expr, err := e.compile(source)
	if err != nil {
		return false, err
	}
	return expr.Eval(values)
}

func (e *Evaluator) compile(source string) (*Expr, error) {
	e.mu.RLock()
	expr, ok := e.cache[source]
	e.mu.RUnlock()
	if ok {
		return expr, nil
	}
	expr, err := Compile(source)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[source] = expr
	e.mu.Unlock()
	return expr, nil
}

type node interface {
	eval(values Values) (bool, error)
}

type orNode struct{ left, right node }

func (n orNode) eval(values Values) (bool, error) {
	ok, err := n.left.eval(values)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(values)
}

type andNode struct{ left, right node }

func (n andNode) eval(values Values) (bool, error) {
	ok, err := n.left.eval(values)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(values)
}

type notNode struct{ inner node }

func (n notNode) eval(values Values) (bool, error) {
	ok, err := n.inner.eval(values)
	return !ok, err
}

type truthyNode struct{ name string }

func (n truthyNode) eval(values Values) (bool, error) {
	return truthy(values[n.name]), nil
}

type compareNode struct {
	name    string
	op      tokenKind
	literal token
}

func (n compareNode) eval(values Values) (bool, error) {
	got := strings.TrimSpace(values[n.name])

	switch n.literal.kind {
	case tokEmpty:
		return equality(n.op, got == "")
	case tokBool:
		want := n.literal.text == "true"
		return equality(n.op, truthy(got) == want)
	case tokNumber:
		want, err := decimal.NewFromString(n.literal.text)
		if err != nil {
			return false, fmt.Errorf("condition: invalid number %q", n.literal.text)
		}
		have, err := decimal.NewFromString(got)
		if err != nil {
			have = decimal.Zero
		}
		return order(n.op, have.Cmp(want))
	default:
		if n.op == tokEq || n.op == tokNeq {
			return equality(n.op, got == n.literal.text)
		}
		return order(n.op, strings.Compare(got, n.literal.text))
	}
}

func equality(op tokenKind, equal bool) (bool, error) {
	switch op {
	case tokEq:
		return equal, nil
	case tokNeq:
		return !equal, nil
	default:
		return false, fmt.Errorf("condition: ordering is not defined for this literal")
	}
}

func order(op tokenKind, cmp int) (bool, error) {
	switch op {
	case tokEq:
		return cmp == 0, nil
	case tokNeq:
		return cmp != 0, nil
	case tokLt:
		return cmp < 0, nil
	case tokLte:
		return cmp <= 0, nil
	case tokGt:
		return cmp > 0, nil
	case tokGte:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("condition: unsupported operator")
	}
}

func truthy(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	return true
}
