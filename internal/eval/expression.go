// Package eval implements the parameter expression engine: expressions,
// the dependency-resolving namespace, and the builtin helper table.
package eval

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bburan/pyexperiment/internal/choice"
	"github.com/bburan/pyexperiment/internal/expr"
	"github.com/bburan/pyexperiment/internal/parser"
)

// DefinitionError reports a parameter whose formula failed to parse or
// evaluate for a reason other than referencing runtime context.
type DefinitionError struct {
	Name    string // Parameter name, when known
	Formula string
	Err     error
}

func (e *DefinitionError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("parameter %s (%q): %v", e.Name, e.Formula, e.Err)
	}
	return fmt.Sprintf("expression %q: %v", e.Formula, e.Err)
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// Expression is one parameter's definition: either a literal value or a
// formula compiled once from text. A formula that evaluates to a sequence
// generator keeps the live sequence and pulls from it on subsequent
// evaluations until Reset.
type Expression struct {
	source  string    // Original formula text, preserved byte-for-byte
	node    expr.Node // nil for literals
	trigger string    // Advance-trigger parameter name, or ""
	deps    []string  // Names referenced by the formula, plus the trigger
	cached  any
	seq     choice.Sequence
}

// ExpressionOption configures expression construction.
type ExpressionOption func(*Expression)

// EvaluateWhen attaches an advance trigger: the expression's sequence
// produces its next value only in rounds where the named parameter's own
// sequence has restarted. Equivalent to wrapping the formula in
// u(<formula>, <name>).
func EvaluateWhen(name string) ExpressionOption {
	return func(e *Expression) { e.trigger = name }
}

// NewExpression builds an Expression from a literal value or formula text.
// Strings are compiled as formulas; any other value is a constant. A
// formula that fails to parse, or that fails an eager evaluation against
// the builtin table for any reason other than an unresolved name, returns
// a DefinitionError.
func NewExpression(value any, opts ...ExpressionOption) (*Expression, error) {
	text, isFormula := value.(string)
	if !isFormula {
		e := &Expression{source: literalText(value), cached: normalize(value)}
		for _, opt := range opts {
			opt(e)
		}
		if e.trigger != "" {
			e.deps = []string{e.trigger}
		}
		return e, nil
	}

	compiled, err := parser.Parse(text)
	if err != nil {
		return nil, &DefinitionError{Formula: text, Err: err}
	}
	e := &Expression{source: text, node: compiled.Root, trigger: compiled.Trigger}
	for _, opt := range opts {
		opt(e)
	}
	e.deps = expr.Names(compiled.Root)
	if e.trigger != "" && !contains(e.deps, e.trigger) {
		e.deps = append(e.deps, e.trigger)
	}

	// Definition-time pre-check against the builtin table alone. An
	// unresolved name is expected (the formula may need runtime context);
	// anything else is a genuine definition error. The result, possibly a
	// sequence, is discarded unconsumed.
	if _, err := evalNode(e.node, nil); err != nil && !errors.Is(err, ErrUndefinedName) {
		return nil, &DefinitionError{Formula: text, Err: err}
	}
	return e, nil
}

// MustExpression is NewExpression for statically known-good definitions.
func MustExpression(value any, opts ...ExpressionOption) *Expression {
	e, err := NewExpression(value, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Evaluate computes the expression's value for the current round.
//
// If a live sequence is held, advance controls whether the next element is
// pulled (possibly returning choice.ErrExhausted) or the memoized value is
// reused. Otherwise the formula runs against the union of the builtin
// table and ctx; a resulting sequence is captured and its first element
// pulled, unless dryRun is set, in which case the sequence itself is
// returned and no state is touched.
func (e *Expression) Evaluate(ctx map[string]any, dryRun, advance bool) (any, error) {
	if e.seq != nil {
		if advance {
			v, err := e.seq.Next()
			if err != nil {
				return nil, err
			}
			e.cached = v
		}
		return e.cached, nil
	}

	if e.node == nil {
		return e.cached, nil
	}

	value, err := evalNode(e.node, ctx)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return value, nil
	}
	if seq, ok := value.(choice.Sequence); ok {
		v, err := seq.Next()
		if err != nil {
			return nil, err
		}
		e.seq = seq
		e.cached = v
		return v, nil
	}
	e.cached = value
	return value, nil
}

// Reset drops the live sequence and memoized value so the formula is fully
// re-evaluated on next use. Constants are unaffected.
func (e *Expression) Reset() {
	if e.seq != nil {
		e.seq = nil
		e.cached = nil
	}
}

// Dependencies returns the names the formula references, including the
// advance trigger. Names that are not parameters are builtin references
// and are skipped by the resolver.
func (e *Expression) Dependencies() []string { return e.deps }

// Trigger returns the advance-trigger parameter name, or "".
func (e *Expression) Trigger() string { return e.trigger }

// IsLiteral reports whether the expression is a constant rather than a
// formula.
func (e *Expression) IsLiteral() bool { return e.node == nil }

// Value returns the literal value of a constant expression.
func (e *Expression) Value() any {
	if e.IsLiteral() {
		return e.cached
	}
	return nil
}

// Source returns the original formula text (or the literal's rendering).
// This is the persisted form; compiled state is never serialized.
func (e *Expression) Source() string { return e.source }

func (e *Expression) String() string { return e.source }

// Equal reports whether two expressions have the same definition text.
// Assigning an identical expression must not register as a pending change.
func (e *Expression) Equal(other *Expression) bool {
	if other == nil {
		return false
	}
	return e.source == other.source && e.trigger == other.trigger
}

// Clone returns a fresh Expression recompiled from the stored text, with
// no sequence or memoized state.
func (e *Expression) Clone() (*Expression, error) {
	if e.node == nil {
		c := *e
		c.seq = nil
		return &c, nil
	}
	var opts []ExpressionOption
	if e.trigger != "" {
		opts = append(opts, EvaluateWhen(e.trigger))
	}
	return NewExpression(e.source, opts...)
}

// normalize coerces literal numbers to float64, the engine's numeric type.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func literalText(v any) string {
	switch x := normalize(v).(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprintf("%v", x)
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
