package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bburan/pyexperiment/internal/controller"
	"github.com/bburan/pyexperiment/internal/paradigm"
	"github.com/bburan/pyexperiment/internal/store"
)

func toneParadigm(t *testing.T) *paradigm.Paradigm {
	t.Helper()
	p, err := paradigm.NewBuilder().
		Add("freq", "Frequency (Hz)", true, "ascending([1000, 2000, 4000], cycles=1)").
		Add("level", "Level (dB SPL)", true, 60).
		Build()
	require.NoError(t, err)
	return p
}

func TestRunUntilExhausted(t *testing.T) {
	rec := store.NewMemory()
	run, err := New(toneParadigm(t), WithRecorder(rec))
	require.NoError(t, err)
	defer run.Close()

	require.NoError(t, run.Run())
	assert.Equal(t, 3, run.Trials())
	assert.Equal(t, controller.Halted, run.Controller().State())

	trials := rec.Trials()
	require.Len(t, trials, 3)
	assert.Equal(t, 1000.0, trials[0].Values["freq"])
	assert.Equal(t, 4000.0, trials[2].Values["freq"])

	var kinds []string
	for _, e := range rec.Events() {
		kinds = append(kinds, e.Event)
	}
	assert.Contains(t, kinds, "experiment_start")
	assert.Contains(t, kinds, "experiment_end")
}

func TestRunHonorsTrialCap(t *testing.T) {
	rec := store.NewMemory()
	run, err := New(toneParadigm(t), WithRecorder(rec), WithMaxTrials(2))
	require.NoError(t, err)
	defer run.Close()

	require.NoError(t, run.Run())
	assert.Equal(t, 2, run.Trials())
	assert.Len(t, rec.Trials(), 2)
}

func TestTrialFuncOutcomeRecorded(t *testing.T) {
	rec := store.NewMemory()
	var seen []float64
	run, err := New(toneParadigm(t),
		WithRecorder(rec),
		WithTrialFunc(func(trial int, ctx map[string]any) (map[string]any, error) {
			seen = append(seen, ctx["freq"].(float64))
			return map[string]any{"response": "yes"}, nil
		}))
	require.NoError(t, err)
	defer run.Close()

	require.NoError(t, run.Run())
	assert.Equal(t, []float64{1000, 2000, 4000}, seen)
	require.Len(t, rec.Trials(), 3)
	assert.Equal(t, "yes", rec.Trials()[0].Values["response"])
}

func TestRunSettersSeeEachChange(t *testing.T) {
	var freqs []any
	run, err := New(toneParadigm(t),
		WithMemoryRecorder(),
		WithSetter("freq", func(v any) { freqs = append(freqs, v) }))
	require.NoError(t, err)
	defer run.Close()

	require.NoError(t, run.Run())
	assert.Equal(t, []any{1000.0, 2000.0, 4000.0}, freqs)
}

func TestPauseRequestSuspendsRun(t *testing.T) {
	run, err := New(toneParadigm(t))
	require.NoError(t, err)
	defer run.Close()

	run.Controller().RequestPause()
	require.NoError(t, run.Run())
	assert.Equal(t, controller.Paused, run.Controller().State())
	assert.Equal(t, 0, run.Trials())

	// A second Run resumes and finishes the sequence.
	require.NoError(t, run.Run())
	assert.Equal(t, controller.Halted, run.Controller().State())
	assert.Equal(t, 3, run.Trials())
}

func TestStopRequestEndsRun(t *testing.T) {
	var run *Runtime
	var err error
	run, err = New(toneParadigm(t),
		WithTrialFunc(func(trial int, ctx map[string]any) (map[string]any, error) {
			run.Controller().RequestStop()
			return nil, nil
		}))
	require.NoError(t, err)
	defer run.Close()

	require.NoError(t, run.Run())
	assert.Equal(t, 1, run.Trials())
	assert.Equal(t, controller.Halted, run.Controller().State())
}
