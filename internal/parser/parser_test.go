package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bburan/pyexperiment/internal/expr"
	"github.com/bburan/pyexperiment/internal/token"
)

func mustParse(t *testing.T, src string) *Compiled {
	t.Helper()
	c, err := Parse(src)
	require.NoError(t, err, "parsing %q", src)
	return c
}

func TestPrecedence(t *testing.T) {
	c := mustParse(t, "1 + 2 * 3")
	want := expr.Binary{
		Op:   token.PLUS,
		Left: expr.Number{Value: 1, Text: "1"},
		Right: expr.Binary{
			Op:    token.STAR,
			Left:  expr.Number{Value: 2, Text: "2"},
			Right: expr.Number{Value: 3, Text: "3"},
		},
	}
	assert.Equal(t, want, c.Root)
}

func TestPowerRightAssociative(t *testing.T) {
	c := mustParse(t, "2 ** 3 ** 2")
	want := expr.Binary{
		Op:   token.POWER,
		Left: expr.Number{Value: 2, Text: "2"},
		Right: expr.Binary{
			Op:    token.POWER,
			Left:  expr.Number{Value: 3, Text: "3"},
			Right: expr.Number{Value: 2, Text: "2"},
		},
	}
	assert.Equal(t, want, c.Root)
}

func TestComparisonAndBoolean(t *testing.T) {
	c := mustParse(t, "a < 5 and not b")
	want := expr.Binary{
		Op: token.AND,
		Left: expr.Binary{
			Op:    token.LT,
			Left:  expr.Name{Ident: "a"},
			Right: expr.Number{Value: 5, Text: "5"},
		},
		Right: expr.Unary{Op: token.NOT, Operand: expr.Name{Ident: "b"}},
	}
	assert.Equal(t, want, c.Root)
}

func TestTriggerUnwrap(t *testing.T) {
	c := mustParse(t, "u(ascending([1, 2]), other)")
	assert.Equal(t, "other", c.Trigger)
	call, ok := c.Root.(expr.Call)
	require.True(t, ok)
	assert.Equal(t, "ascending", call.Func)
}

func TestTriggerRequiresName(t *testing.T) {
	// A non-name second argument leaves u as an ordinary call.
	c := mustParse(t, "u(x, 5)")
	assert.Empty(t, c.Trigger)
	call, ok := c.Root.(expr.Call)
	require.True(t, ok)
	assert.Equal(t, "u", call.Func)
}

func TestNestedTriggerNotUnwrapped(t *testing.T) {
	c := mustParse(t, "1 + u(x, y)")
	assert.Empty(t, c.Trigger)
}

func TestKeywordArguments(t *testing.T) {
	c := mustParse(t, "shuffled_set([1, 2], cycles=2, seed=4)")
	call, ok := c.Root.(expr.Call)
	require.True(t, ok)
	assert.Len(t, call.Args, 1)
	require.Len(t, call.Kwargs, 2)
	assert.Equal(t, "cycles", call.Kwargs[0].Name)
	assert.Equal(t, "seed", call.Kwargs[1].Name)
}

func TestPositionalAfterKeyword(t *testing.T) {
	_, err := Parse("f(a=1, 2)")
	assert.ErrorContains(t, err, "positional argument after keyword")
}

func TestIdentifierArgumentInExpression(t *testing.T) {
	// The leading identifier is probed as a possible keyword argument; the
	// parser must resume the surrounding expression correctly.
	c := mustParse(t, "imul(x + 1, y)")
	call, ok := c.Root.(expr.Call)
	require.True(t, ok)
	require.Len(t, call.Args, 2)
	want := expr.Binary{
		Op:    token.PLUS,
		Left:  expr.Name{Ident: "x"},
		Right: expr.Number{Value: 1, Text: "1"},
	}
	assert.Equal(t, want, call.Args[0])
	assert.Equal(t, expr.Name{Ident: "y"}, call.Args[1])
}

func TestNestedCallArgument(t *testing.T) {
	c := mustParse(t, "f(g(x) * 2, h)")
	call, ok := c.Root.(expr.Call)
	require.True(t, ok)
	require.Len(t, call.Args, 2)
	mul, ok := call.Args[0].(expr.Binary)
	require.True(t, ok)
	assert.Equal(t, token.STAR, mul.Op)
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"1 +", "(1", "f(", "[1, 2", ")", "1 2", "'open"} {
		_, err := Parse(src)
		assert.Error(t, err, "source %q", src)
	}
}

func TestCompileCache(t *testing.T) {
	a := mustParse(t, "cached_formula_probe * 2")
	b := mustParse(t, "cached_formula_probe * 2")
	assert.Same(t, a, b)
}
