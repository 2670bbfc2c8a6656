package store

import (
	"fmt"
	"sync"
)

// Memory is an in-memory recorder for testing.
type Memory struct {
	mu        sync.Mutex
	columns   []Column
	trials    []Trial
	events    []Event
	paradigms map[string]string
}

// NewMemory creates a new in-memory recorder.
func NewMemory() *Memory {
	return &Memory{paradigms: make(map[string]string)}
}

// RegisterColumns declares the trial-log columns.
func (m *Memory) RegisterColumns(cols []Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.columns = append([]Column(nil), cols...)
	return nil
}

// LogTrial appends one row to the trial log.
func (m *Memory) LogTrial(values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	m.trials = append(m.trials, Trial{Index: len(m.trials) + 1, Values: copied})
	return nil
}

// LogEvent appends one entry to the event log.
func (m *Memory) LogEvent(ts float64, event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{Ts: ts, Event: event})
	return nil
}

// Close is a no-op for the memory recorder.
func (m *Memory) Close() error {
	return nil
}

// Columns returns the registered columns.
func (m *Memory) Columns() []Column {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Column(nil), m.columns...)
}

// Trials returns the recorded trial rows.
func (m *Memory) Trials() []Trial {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Trial(nil), m.trials...)
}

// Events returns the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// SaveParadigm stores a paradigm document by name.
func (m *Memory) SaveParadigm(name, doc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paradigms[name] = doc
	return nil
}

// LoadParadigm retrieves a paradigm document by name.
func (m *Memory) LoadParadigm(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.paradigms[name]
	if !ok {
		return "", fmt.Errorf("paradigm %s not found", name)
	}
	return doc, nil
}
