// Package controller implements the experiment controller: the run state
// machine, the context refresh protocol around the expression namespace,
// operator edits with apply/revert semantics, setter dispatch, and trial
// and event logging.
package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bburan/pyexperiment/internal/eval"
	"github.com/bburan/pyexperiment/internal/paradigm"
	"github.com/bburan/pyexperiment/internal/store"
)

// State is the controller lifecycle state.
type State int

const (
	Uninitialized State = iota
	Initialized
	Running
	Paused
	Halted
)

var stateNames = map[State]string{
	Uninitialized: "uninitialized",
	Initialized:   "initialized",
	Running:       "running",
	Paused:        "paused",
	Halted:        "halted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrInvalidTransition is returned when an operation is not permitted in
// the controller's current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// Setter applies one parameter value to the hardware or stimulus side.
// Registered per parameter name; a parameter without a setter is a no-op.
type Setter func(value any)

// Controller owns the trial-level context protocol. It holds the working
// paradigm the operator edits, a shadow copy carrying the committed
// definitions, and the namespace built over the shadow's expressions.
type Controller struct {
	logger   *slog.Logger
	recorder store.Recorder
	setters  map[string]Setter
	extra    map[string]any // persistent extra-context overlay

	state   State
	working *paradigm.Paradigm // operator edit buffer
	shadow  *paradigm.Paradigm // committed definitions; owns generator state
	sources []paradigm.Source
	decls   []paradigm.Declaration
	labels  map[string]string
	ns      *eval.Namespace

	pending        bool
	stopRequested  bool
	pauseRequested bool
	trial          int
	started        time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithRecorder attaches a trial/event recorder. Without one, logging calls
// are no-ops.
func WithRecorder(r store.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithSetter registers the setter invoked when the named parameter's
// resolved value changes between rounds.
func WithSetter(name string, s Setter) Option {
	return func(c *Controller) { c.setters[name] = s }
}

// WithExtraContext supplies a persistent extra-context overlay applied
// beneath resolved values every round.
func WithExtraContext(extra map[string]any) Option {
	return func(c *Controller) { c.extra = extra }
}

// New creates a controller over the given paradigm. The controller starts
// uninitialized; call InitializeContext before anything else.
func New(p *paradigm.Paradigm, opts ...Option) *Controller {
	c := &Controller{
		logger:  slog.Default(),
		setters: make(map[string]Setter),
		working: p,
		state:   Uninitialized,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.state }

// InitializeContext scans the paradigm and any additional context sources
// for parameter declarations, snapshots the paradigm into the shadow copy,
// and builds the namespace from the shadow's expressions.
func (c *Controller) InitializeContext(sources ...paradigm.Source) error {
	if c.state != Uninitialized {
		return fmt.Errorf("%w: initialize from %s", ErrInvalidTransition, c.state)
	}
	c.sources = append([]paradigm.Source{c.working}, sources...)
	c.decls = nil
	c.labels = make(map[string]string)
	for _, src := range c.sources {
		for _, d := range src.ContextDeclarations() {
			if _, dup := c.labels[d.Name]; dup {
				return fmt.Errorf("parameter %s declared by multiple sources", d.Name)
			}
			c.decls = append(c.decls, d)
			c.labels[d.Name] = d.Label
		}
	}

	shadow, err := c.working.Clone()
	if err != nil {
		return err
	}
	c.shadow = shadow
	c.ns = eval.NewNamespace(c.shadow.Expressions(),
		eval.WithObserver(c),
		eval.WithExtraContext(c.extra),
		eval.WithLogger(c.logger))
	c.state = Initialized
	c.logger.Info("context initialized", "parameters", len(c.decls))
	return nil
}

// RefreshContext starts a fresh round at a trial boundary: current values
// are snapshotted for change detection, the working set is repopulated,
// and the caller-supplied extra context is set eagerly ahead of lazy
// resolution. With evaluate set, every parameter is resolved immediately.
func (c *Controller) RefreshContext(extra map[string]any, evaluate bool) error {
	if c.ns == nil {
		return fmt.Errorf("%w: refresh before initialize", ErrInvalidTransition)
	}
	c.ns.ResetValues(c.extra)
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.ns.SetValue(name, extra[name])
	}
	if evaluate {
		if _, err := c.ns.EvaluateValues(nil); err != nil {
			return err
		}
	}
	return nil
}

// GetCurrentValue resolves one parameter for the current round.
func (c *Controller) GetCurrentValue(name string) (any, error) {
	if c.ns == nil {
		return nil, fmt.Errorf("%w: value before initialize", ErrInvalidTransition)
	}
	return c.ns.EvaluateValue(name, nil)
}

// SetCurrentValue records a value for the current round ahead of lazy
// resolution, dispatching the parameter's setter if the value changed.
func (c *Controller) SetCurrentValue(name string, value any) error {
	if c.ns == nil {
		return fmt.Errorf("%w: value before initialize", ErrInvalidTransition)
	}
	c.ns.SetValue(name, value)
	_, err := c.ns.EvaluateValue(name, nil)
	return err
}

// ValueChanged reports whether the parameter's resolved value differs from
// the previous round.
func (c *Controller) ValueChanged(name string) bool {
	return c.ns != nil && c.ns.ValueChanged(name)
}

// Context returns the round's resolved values.
func (c *Controller) Context() map[string]any {
	if c.ns == nil {
		return nil
	}
	return c.ns.Context()
}

// SetParameter stages an operator edit in the working paradigm. The edit
// takes effect only when Apply succeeds.
func (c *Controller) SetParameter(name string, value any) error {
	changed, err := c.working.Set(name, value)
	if err != nil {
		return err
	}
	if changed {
		c.pending = true
		c.logger.Debug("parameter edit staged", "parameter", name)
	}
	return nil
}

// PendingChanges reports whether staged edits await Apply.
func (c *Controller) PendingChanges() bool { return c.pending }

// Apply commits staged edits. The candidate definitions are cloned and
// validated by a full dry-run evaluation first; on any failure nothing
// changes and the error is returned for operator correction. On success
// the shadow paradigm and namespace are replaced atomically, restarting
// generator state under the new definitions.
func (c *Controller) Apply(extra map[string]any) error {
	if !c.pending {
		return nil
	}
	if c.ns == nil {
		return fmt.Errorf("%w: apply before initialize", ErrInvalidTransition)
	}
	candidate, err := c.working.Clone()
	if err != nil {
		return err
	}
	probe := eval.NewNamespace(candidate.Expressions(), eval.WithLogger(c.logger))
	if err := probe.DryRun(mergeContext(c.extra, extra)); err != nil {
		return fmt.Errorf("validating pending changes: %w", err)
	}
	c.shadow = candidate
	c.ns = eval.NewNamespace(c.shadow.Expressions(),
		eval.WithObserver(c),
		eval.WithExtraContext(c.extra),
		eval.WithLogger(c.logger))
	c.pending = false
	c.logger.Info("context changes applied")
	c.event("context_changes_applied")
	return nil
}

// Revert discards staged edits, restoring the working paradigm from the
// committed shadow.
func (c *Controller) Revert() error {
	if !c.pending {
		return nil
	}
	if c.shadow == nil {
		return fmt.Errorf("%w: revert before initialize", ErrInvalidTransition)
	}
	restored, err := c.shadow.Clone()
	if err != nil {
		return err
	}
	c.working = restored
	c.sources[0] = restored
	c.pending = false
	c.logger.Info("context changes reverted")
	return nil
}

// Paradigm returns the working paradigm (the operator's edit buffer).
func (c *Controller) Paradigm() *paradigm.Paradigm { return c.working }

// ParameterChanged dispatches the registered setter for a changed value.
// Implements eval.Observer.
func (c *Controller) ParameterChanged(name string, value any) {
	setter, ok := c.setters[name]
	if !ok {
		return
	}
	c.logger.Debug("applying value", "parameter", name, "value", value)
	setter(value)
}

// Start moves the controller into the running state, registers the
// trial-log columns, and records the start event.
func (c *Controller) Start() error {
	if c.state != Initialized {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, c.state)
	}
	if err := c.registerColumns(); err != nil {
		return err
	}
	c.state = Running
	c.started = time.Now()
	c.logger.Info("experiment started")
	c.event("experiment_start")
	return nil
}

// Pause suspends trials between rounds.
func (c *Controller) Pause() error {
	if c.state != Running {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, c.state)
	}
	c.state = Paused
	c.pauseRequested = false
	c.logger.Info("experiment paused")
	c.event("experiment_paused")
	return nil
}

// Resume continues a paused experiment.
func (c *Controller) Resume() error {
	if c.state != Paused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, c.state)
	}
	c.state = Running
	c.logger.Info("experiment resumed")
	c.event("experiment_resumed")
	return nil
}

// Stop halts the experiment. Halted is terminal.
func (c *Controller) Stop() error {
	if c.state != Running && c.state != Paused {
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, c.state)
	}
	c.state = Halted
	c.stopRequested = false
	c.logger.Info("experiment stopped", "trials", c.trial)
	c.event("experiment_end")
	return nil
}

// RequestStop asks the run loop to stop at the next trial boundary.
func (c *Controller) RequestStop() { c.stopRequested = true }

// RequestPause asks the run loop to pause at the next trial boundary.
func (c *Controller) RequestPause() { c.pauseRequested = true }

// StopRequested reports whether a stop is pending.
func (c *Controller) StopRequested() bool { return c.stopRequested }

// PauseRequested reports whether a pause is pending.
func (c *Controller) PauseRequested() bool { return c.pauseRequested }

// NextTrial advances to the next trial: a fresh round is started, every
// parameter is resolved eagerly, and the resolved context is returned.
// Sequence exhaustion propagates to the caller, which should interpret it
// as the end of the trial sequence and stop.
func (c *Controller) NextTrial(extra map[string]any) (map[string]any, error) {
	if c.state != Running {
		return nil, fmt.Errorf("%w: next trial from %s", ErrInvalidTransition, c.state)
	}
	if err := c.RefreshContext(extra, true); err != nil {
		return nil, err
	}
	c.trial++
	c.logger.Debug("trial context ready", "trial", c.trial)
	return c.ns.Context(), nil
}

// Trial returns the number of trials started.
func (c *Controller) Trial() int { return c.trial }

// LogTrial records the round's loggable values, the formula text of each
// loggable expression under an expression_<name> column, and any
// caller-supplied outcome values.
func (c *Controller) LogTrial(outcome map[string]any) error {
	if c.recorder == nil {
		return nil
	}
	context := c.ns.Context()
	row := make(map[string]any)
	for _, d := range c.decls {
		if !d.Log {
			continue
		}
		if v, ok := context[d.Name]; ok {
			row[d.Name] = v
		}
		// Formula text comes from the committed definitions so that applied
		// edits are reflected.
		e := d.Expr
		if committed, ok := c.shadow.Expression(d.Name); ok {
			e = committed
		}
		if e != nil && !e.IsLiteral() {
			row["expression_"+d.Name] = e.Source()
		}
	}
	for k, v := range outcome {
		row[k] = v
	}
	return c.recorder.LogTrial(row)
}

// LogEvent records a timestamped experiment event.
func (c *Controller) LogEvent(event string) error {
	if c.recorder == nil {
		return nil
	}
	return c.recorder.LogEvent(c.elapsed(), event)
}

func (c *Controller) registerColumns() error {
	if c.recorder == nil {
		return nil
	}
	var cols []store.Column
	for _, d := range c.decls {
		if !d.Log {
			continue
		}
		cols = append(cols, store.Column{Name: d.Name, Kind: columnKind(d)})
		if d.Expr != nil && !d.Expr.IsLiteral() {
			cols = append(cols, store.Column{Name: "expression_" + d.Name, Kind: "text"})
		}
	}
	return c.recorder.RegisterColumns(cols)
}

func (c *Controller) event(name string) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.LogEvent(c.elapsed(), name); err != nil {
		c.logger.Error("logging event", "event", name, "error", err)
	}
}

func (c *Controller) elapsed() float64 {
	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started).Seconds()
}

// columnKind infers a column type from the declaration's default value.
// Formulas and numeric literals record numbers.
func columnKind(d paradigm.Declaration) string {
	if d.Expr == nil || !d.Expr.IsLiteral() {
		return "number"
	}
	switch d.Expr.Value().(type) {
	case bool:
		return "bool"
	case string:
		return "text"
	default:
		return "number"
	}
}

func mergeContext(base, extra map[string]any) map[string]any {
	if base == nil {
		return extra
	}
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
