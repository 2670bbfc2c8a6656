// Package experiment provides the public API for defining and running
// parameter-driven experiments.
package experiment

import (
	"log/slog"

	"github.com/bburan/pyexperiment/internal/controller"
	"github.com/bburan/pyexperiment/internal/paradigm"
	"github.com/bburan/pyexperiment/internal/store"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithSQLiteRecorder records trials and events to a SQLite database at the
// given path. The runtime owns the recorder and closes it on Close.
func WithSQLiteRecorder(path string) Option {
	return func(r *Runtime) { r.sqlitePath = path }
}

// WithMemoryRecorder records trials and events in memory (for testing).
func WithMemoryRecorder() Option {
	return func(r *Runtime) { r.recorder = store.NewMemory() }
}

// WithRecorder attaches a caller-owned recorder.
func WithRecorder(rec store.Recorder) Option {
	return func(r *Runtime) { r.recorder = rec }
}

// WithSetter registers the callback invoked when the named parameter's
// value changes between trials.
func WithSetter(name string, s controller.Setter) Option {
	return func(r *Runtime) { r.setters[name] = s }
}

// WithSource adds a context source beyond the paradigm, e.g. a data log
// declaring outcome fields.
func WithSource(src paradigm.Source) Option {
	return func(r *Runtime) { r.sources = append(r.sources, src) }
}

// WithExtraContext supplies a persistent extra-context overlay available
// to formulas every trial.
func WithExtraContext(extra map[string]any) Option {
	return func(r *Runtime) { r.extra = extra }
}

// WithMaxTrials caps the number of trials. Zero means run until the trial
// sequence is exhausted.
func WithMaxTrials(n int) Option {
	return func(r *Runtime) { r.maxTrials = n }
}

// WithTrialFunc sets the per-trial callback. It receives the trial number
// and the resolved context and returns outcome values to merge into the
// trial log.
func WithTrialFunc(fn TrialFunc) Option {
	return func(r *Runtime) { r.onTrial = fn }
}

// WithLogger sets the runtime's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}
