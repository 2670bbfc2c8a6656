package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bburan/pyexperiment/internal/choice"
)

func evalOnce(t *testing.T, src string, ctx map[string]any) any {
	t.Helper()
	e, err := NewExpression(src)
	require.NoError(t, err)
	v, err := e.Evaluate(ctx, false, true)
	require.NoError(t, err)
	return v
}

func TestLiteralExpression(t *testing.T) {
	e, err := NewExpression(57)
	require.NoError(t, err)
	assert.True(t, e.IsLiteral())
	assert.Equal(t, 57.0, e.Value())
	assert.Equal(t, "57", e.Source())
	assert.Empty(t, e.Dependencies())
	v, err := e.Evaluate(nil, false, true)
	require.NoError(t, err)
	assert.Equal(t, 57.0, v)
}

func TestArithmetic(t *testing.T) {
	assert.Equal(t, 11.0, evalOnce(t, "5 * 2 + 1", nil))
	assert.Equal(t, 3.0, evalOnce(t, "7 // 2", nil))
	assert.Equal(t, 1.0, evalOnce(t, "7 % 3", nil))
	assert.Equal(t, 8.0, evalOnce(t, "2 ** 3", nil))
	assert.Equal(t, -4.0, evalOnce(t, "-2 ** 2", nil))
	assert.Equal(t, 2.5, evalOnce(t, "5 / 2", nil))
}

func TestStringConcatenation(t *testing.T) {
	assert.Equal(t, "go_remind", evalOnce(t, "'go_' + 'remind'", nil))
}

func TestComparisons(t *testing.T) {
	assert.Equal(t, true, evalOnce(t, "1 < 2", nil))
	assert.Equal(t, false, evalOnce(t, "2 != 2", nil))
	assert.Equal(t, true, evalOnce(t, "'a' < 'b'", nil))
	assert.Equal(t, true, evalOnce(t, "None == None", nil))
}

func TestBooleanOperatorsReturnOperands(t *testing.T) {
	assert.Equal(t, 5.0, evalOnce(t, "0 or 5", nil))
	assert.Equal(t, 0.0, evalOnce(t, "0 and 3", nil))
	assert.Equal(t, 3.0, evalOnce(t, "2 and 3", nil))
	assert.Equal(t, "x", evalOnce(t, "'' or 'x'", nil))
	assert.Equal(t, true, evalOnce(t, "not 0", nil))
	assert.Equal(t, false, evalOnce(t, "not [1]", nil))
}

func TestContextResolution(t *testing.T) {
	assert.Equal(t, 20.0, evalOnce(t, "a * 5", map[string]any{"a": 4.0}))
}

func TestUndefinedName(t *testing.T) {
	e, err := NewExpression("a * 5")
	require.NoError(t, err, "unresolved names must pass the definition check")
	_, err = e.Evaluate(nil, false, true)
	assert.ErrorIs(t, err, ErrUndefinedName)
}

func TestDivisionByZero(t *testing.T) {
	e := MustExpression("1 / denom")
	_, err := e.Evaluate(map[string]any{"denom": 0.0}, false, true)
	assert.Error(t, err)
}

func TestDefinitionErrors(t *testing.T) {
	_, err := NewExpression("5 +")
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Equal(t, "5 +", defErr.Formula)

	// ascending requires a sequence; the eager check catches this even
	// though no context is available yet.
	_, err = NewExpression("ascending(5)")
	assert.ErrorAs(t, err, &defErr)

	_, err = NewExpression("1 / 0")
	assert.ErrorAs(t, err, &defErr)
}

func TestDependencies(t *testing.T) {
	e := MustExpression("a * b + imul(c, 2)")
	assert.Equal(t, []string{"a", "b", "imul", "c"}, e.Dependencies())
}

func TestTriggerWrapper(t *testing.T) {
	e := MustExpression("u(ascending([1, 2, 3]), p)")
	assert.Equal(t, "p", e.Trigger())
	assert.Contains(t, e.Dependencies(), "p")
}

func TestEvaluateWhenOption(t *testing.T) {
	e := MustExpression("ascending([1, 2, 3])", EvaluateWhen("p"))
	assert.Equal(t, "p", e.Trigger())
	assert.Contains(t, e.Dependencies(), "p")
}

func TestSequenceCapture(t *testing.T) {
	e := MustExpression("ascending([3, 1, 2], cycles=1)")

	v, err := e.Evaluate(nil, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	// Without advance, the memoized value is reused.
	v, err = e.Evaluate(nil, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	for _, want := range []float64{2.0, 3.0} {
		v, err = e.Evaluate(nil, false, true)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}

	_, err = e.Evaluate(nil, false, true)
	assert.ErrorIs(t, err, choice.ErrExhausted)

	// Reset restarts the sequence from a fresh formula evaluation.
	e.Reset()
	v, err = e.Evaluate(nil, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestDryRunDoesNotConsume(t *testing.T) {
	e := MustExpression("ascending([1, 2], cycles=1)")

	v, err := e.Evaluate(nil, true, true)
	require.NoError(t, err)
	_, isSeq := v.(choice.Sequence)
	assert.True(t, isSeq, "dry run returns the unconsumed sequence")

	v, err = e.Evaluate(nil, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v, "dry run must not have consumed the sequence")
}

func TestEquality(t *testing.T) {
	a := MustExpression("freq * 2")
	b := MustExpression("freq * 2")
	c := MustExpression("freq * 3")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))

	lit := MustExpression(60)
	assert.True(t, lit.Equal(MustExpression(60.0)))
	assert.False(t, lit.Equal(MustExpression(61)))
}

func TestCloneStartsFresh(t *testing.T) {
	e := MustExpression("ascending([1, 2, 3], cycles=1)")
	_, err := e.Evaluate(nil, false, true)
	require.NoError(t, err)
	_, err = e.Evaluate(nil, false, true)
	require.NoError(t, err)

	c, err := e.Clone()
	require.NoError(t, err)
	assert.True(t, c.Equal(e))

	v, err := c.Evaluate(nil, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v, "clone must not share sequence state")

	v, err = e.Evaluate(nil, false, true)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v, "original keeps its own cursor")
}

func TestHelperBuiltins(t *testing.T) {
	assert.Equal(t, []any{0.0, 1.0, 2.0}, evalOnce(t, "range(3)", nil))
	assert.Equal(t, []any{2.0, 4.0, 6.0}, evalOnce(t, "range(2, 8, 2)", nil))
	assert.Equal(t, 10.0, evalOnce(t, "imul(9.7, 5)", nil))
	assert.InDelta(t, 0.5, evalOnce(t, "h_uniform(3, 1, 5)", nil).(float64), 1e-9)
	assert.Equal(t, 0.0, evalOnce(t, "h_uniform(0, 1, 5)", nil))
	assert.Equal(t, 1.0, evalOnce(t, "h_uniform(5, 1, 5)", nil))

	v := evalOnce(t, "uniform(2, 4)", nil).(float64)
	assert.GreaterOrEqual(t, v, 2.0)
	assert.Less(t, v, 4.0)

	_, isBool := evalOnce(t, "toss(0.5)", nil).(bool)
	assert.True(t, isBool)

	assert.Contains(t, []any{1.0, 2.0, 3.0}, evalOnce(t, "choice([1, 2, 3])", nil))
}

func TestOctaveSpace(t *testing.T) {
	v := evalOnce(t, "octave_space(1e3, 4e3, 1)", nil)
	freqs, ok := v.([]any)
	require.True(t, ok)
	require.Len(t, freqs, 3)
	assert.InDelta(t, 1000.0, freqs[0].(float64), 1e-6)
	assert.InDelta(t, 2000.0, freqs[1].(float64), 1e-6)
	assert.InDelta(t, 4000.0, freqs[2].(float64), 1e-6)
}

func TestNotCallable(t *testing.T) {
	e := MustExpression("x(1)")
	_, err := e.Evaluate(map[string]any{"x": 5.0}, false, true)
	assert.ErrorContains(t, err, "not callable")
}
