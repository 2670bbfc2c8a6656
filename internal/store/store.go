// Package store provides persistence for experiment runs: registered
// trial-log columns, per-trial rows, timestamped events, and saved
// paradigm documents.
package store

// Column describes one trial-log column registered before the run starts.
type Column struct {
	Name string
	Kind string // "number", "text", or "bool"
}

// Event is one timestamped experiment event.
type Event struct {
	Ts    float64
	Event string
}

// Trial is one recorded trial row.
type Trial struct {
	Index  int
	Values map[string]any
}

// Recorder is the interface for run persistence. A Recorder instance
// corresponds to one experiment run.
type Recorder interface {
	// RegisterColumns declares the trial-log columns. Must be called
	// before the first LogTrial.
	RegisterColumns(cols []Column) error
	// LogTrial appends one row to the trial log.
	LogTrial(values map[string]any) error
	// LogEvent appends one entry to the event log.
	LogEvent(ts float64, event string) error
	// Close releases resources.
	Close() error
}

// ParadigmStore persists paradigm value documents by name, so a tweaked
// parameter set can be reloaded for a later session.
type ParadigmStore interface {
	SaveParadigm(name, doc string) error
	LoadParadigm(name string) (string, error)
}
