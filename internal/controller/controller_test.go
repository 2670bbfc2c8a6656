package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bburan/pyexperiment/internal/choice"
	"github.com/bburan/pyexperiment/internal/paradigm"
	"github.com/bburan/pyexperiment/internal/store"
)

func toneParadigm(t *testing.T) *paradigm.Paradigm {
	t.Helper()
	p, err := paradigm.NewBuilder().
		Add("freq", "Frequency (Hz)", true, "ascending([1000, 2000], cycles=1)").
		Add("level", "Level (dB SPL)", true, 60).
		Add("atten", "Attenuation (dB)", false, "120 - level").
		Build()
	require.NoError(t, err)
	return p
}

func TestLifecycle(t *testing.T) {
	c := New(toneParadigm(t))
	assert.Equal(t, Uninitialized, c.State())

	assert.ErrorIs(t, c.Start(), ErrInvalidTransition)
	require.NoError(t, c.InitializeContext())
	assert.Equal(t, Initialized, c.State())
	assert.ErrorIs(t, c.InitializeContext(), ErrInvalidTransition)

	require.NoError(t, c.Start())
	assert.Equal(t, Running, c.State())
	assert.ErrorIs(t, c.Resume(), ErrInvalidTransition)

	require.NoError(t, c.Pause())
	assert.Equal(t, Paused, c.State())
	assert.ErrorIs(t, c.Pause(), ErrInvalidTransition)

	require.NoError(t, c.Resume())
	require.NoError(t, c.Stop())
	assert.Equal(t, Halted, c.State())
	assert.ErrorIs(t, c.Start(), ErrInvalidTransition)
}

func TestNextTrialResolvesContext(t *testing.T) {
	c := New(toneParadigm(t))
	require.NoError(t, c.InitializeContext())
	require.NoError(t, c.Start())

	ctx, err := c.NextTrial(nil)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, ctx["freq"])
	assert.Equal(t, 60.0, ctx["level"])
	assert.Equal(t, 60.0, ctx["atten"])
	assert.Equal(t, 1, c.Trial())

	ctx, err = c.NextTrial(nil)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, ctx["freq"])
	assert.Equal(t, 2, c.Trial())

	_, err = c.NextTrial(nil)
	assert.ErrorIs(t, err, choice.ErrExhausted)
}

func TestSettersDispatchOnChange(t *testing.T) {
	var freqs, levels []any
	c := New(toneParadigm(t),
		WithSetter("freq", func(v any) { freqs = append(freqs, v) }),
		WithSetter("level", func(v any) { levels = append(levels, v) }))
	require.NoError(t, c.InitializeContext())
	require.NoError(t, c.Start())

	_, err := c.NextTrial(nil)
	require.NoError(t, err)
	_, err = c.NextTrial(nil)
	require.NoError(t, err)

	assert.Equal(t, []any{1000.0, 2000.0}, freqs)
	// The level never changes after the first trial, so its setter fires
	// exactly once.
	assert.Equal(t, []any{60.0}, levels)
}

func TestSetCurrentValue(t *testing.T) {
	var got []any
	c := New(toneParadigm(t),
		WithSetter("level", func(v any) { got = append(got, v) }))
	require.NoError(t, c.InitializeContext())
	require.NoError(t, c.Start())

	require.NoError(t, c.SetCurrentValue("level", 75))
	assert.Equal(t, []any{75.0}, got)
	v, err := c.GetCurrentValue("atten")
	require.NoError(t, err)
	assert.Equal(t, 45.0, v)
}

func TestApplyAndRevert(t *testing.T) {
	c := New(toneParadigm(t))
	require.NoError(t, c.InitializeContext())
	require.NoError(t, c.Start())

	_, err := c.NextTrial(nil)
	require.NoError(t, err)

	require.NoError(t, c.SetParameter("level", 80))
	assert.True(t, c.PendingChanges())

	// Until applied, the running context keeps the old definition.
	v, err := c.GetCurrentValue("level")
	require.NoError(t, err)
	assert.Equal(t, 60.0, v)

	require.NoError(t, c.Apply(nil))
	assert.False(t, c.PendingChanges())

	_, err = c.NextTrial(nil)
	require.NoError(t, err)
	v, err = c.GetCurrentValue("level")
	require.NoError(t, err)
	assert.Equal(t, 80.0, v)

	// Revert restores the committed definition in the edit buffer.
	require.NoError(t, c.SetParameter("level", 90))
	require.NoError(t, c.Revert())
	assert.False(t, c.PendingChanges())
	e, ok := c.Paradigm().Expression("level")
	require.True(t, ok)
	assert.Equal(t, 80.0, e.Value())
}

func TestApplyValidationFailureKeepsOldDefinitions(t *testing.T) {
	c := New(toneParadigm(t))
	require.NoError(t, c.InitializeContext())
	require.NoError(t, c.Start())

	// The formula parses (an unresolved name passes the definition-time
	// check) but cannot be resolved, so the dry run rejects it.
	require.NoError(t, c.SetParameter("level", "undefined_thing + 1"))
	err := c.Apply(nil)
	require.Error(t, err)
	assert.True(t, c.PendingChanges(), "failed apply leaves edits staged")

	_, err = c.NextTrial(nil)
	require.NoError(t, err)
	v, err := c.GetCurrentValue("level")
	require.NoError(t, err)
	assert.Equal(t, 60.0, v, "prior definition remains in effect")
}

func TestApplyIdenticalDefinitionIsNotPending(t *testing.T) {
	c := New(toneParadigm(t))
	require.NoError(t, c.InitializeContext())
	require.NoError(t, c.SetParameter("level", 60))
	assert.False(t, c.PendingChanges())
}

func TestStopAndPauseRequests(t *testing.T) {
	c := New(toneParadigm(t))
	require.NoError(t, c.InitializeContext())
	require.NoError(t, c.Start())

	assert.False(t, c.StopRequested())
	c.RequestStop()
	assert.True(t, c.StopRequested())
	c.RequestPause()
	assert.True(t, c.PauseRequested())

	require.NoError(t, c.Pause())
	assert.False(t, c.PauseRequested(), "entering pause clears the request")
	require.NoError(t, c.Stop())
	assert.False(t, c.StopRequested(), "stopping clears the request")
}

func TestTrialAndEventLogging(t *testing.T) {
	rec := store.NewMemory()
	c := New(toneParadigm(t), WithRecorder(rec))
	require.NoError(t, c.InitializeContext())
	require.NoError(t, c.Start())

	// Loggable parameters register a value column; formulas also register
	// an expression text column. Unloggable parameters are skipped.
	cols := rec.Columns()
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	assert.Equal(t, []string{"freq", "expression_freq", "level"}, names)

	_, err := c.NextTrial(nil)
	require.NoError(t, err)
	require.NoError(t, c.LogTrial(map[string]any{"response": "yes"}))

	trials := rec.Trials()
	require.Len(t, trials, 1)
	row := trials[0].Values
	assert.Equal(t, 1000.0, row["freq"])
	assert.Equal(t, "ascending([1000, 2000], cycles=1)", row["expression_freq"])
	assert.Equal(t, 60.0, row["level"])
	assert.Equal(t, "yes", row["response"])
	assert.NotContains(t, row, "atten")

	require.NoError(t, c.LogEvent("target_on"))
	require.NoError(t, c.Stop())

	events := rec.Events()
	require.NotEmpty(t, events)
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Event
	}
	assert.Contains(t, kinds, "experiment_start")
	assert.Contains(t, kinds, "target_on")
	assert.Contains(t, kinds, "experiment_end")
}

type fieldSource struct{ decls []paradigm.Declaration }

func (s fieldSource) ContextDeclarations() []paradigm.Declaration { return s.decls }

func TestAdditionalContextSources(t *testing.T) {
	rec := store.NewMemory()
	src := fieldSource{decls: []paradigm.Declaration{
		{Name: "response", Label: "Response", Log: true},
	}}
	c := New(toneParadigm(t), WithRecorder(rec))
	require.NoError(t, c.InitializeContext(src))
	require.NoError(t, c.Start())

	_, err := c.NextTrial(map[string]any{"response": "left"})
	require.NoError(t, err)
	require.NoError(t, c.LogTrial(nil))

	trials := rec.Trials()
	require.Len(t, trials, 1)
	assert.Equal(t, "left", trials[0].Values["response"])
}

func TestDuplicateDeclarationAcrossSources(t *testing.T) {
	src := fieldSource{decls: []paradigm.Declaration{
		{Name: "freq", Label: "dup", Log: false},
	}}
	c := New(toneParadigm(t))
	assert.Error(t, c.InitializeContext(src))
}
