package eval

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bburan/pyexperiment/internal/choice"
)

// ErrCircularDependency is returned when a parameter depends, directly or
// transitively, on itself.
var ErrCircularDependency = errors.New("circular dependency")

// ErrUnknownParameter is returned when a requested name has no definition
// in the namespace.
var ErrUnknownParameter = errors.New("unknown parameter")

// Observer is notified when a parameter's resolved value differs from the
// previous round. Notifications are dispatched only after the outer
// resolution completes; the callback may itself request values from the
// namespace.
type Observer interface {
	ParameterChanged(name string, value any)
}

// Namespace resolves parameter values on demand. Definitions (Expression
// or literal) are shared for the life of a run; each trial starts a fresh
// round via ResetValues, which clears per-round memoization without
// discarding generator state.
type Namespace struct {
	logger      *slog.Logger
	definitions map[string]any // *Expression or literal value
	order       []string       // sorted names; fixes full-round resolution order
	catch       map[string]bool
	observer    Observer

	// Per-round state.
	extra      map[string]any // overlay beneath resolved values
	pending    map[string]bool
	context    map[string]any
	old        map[string]any
	triggered  map[string]bool // advance triggers fired this round; "" = no trigger
	inProgress map[string]bool
	changed    []string
	changedVal map[string]any
	notifying  bool
}

// NamespaceOption configures a Namespace.
type NamespaceOption func(*Namespace)

// WithObserver registers the change observer.
func WithObserver(o Observer) NamespaceOption {
	return func(ns *Namespace) { ns.observer = o }
}

// WithExtraContext supplies the initial extra-context overlay for the
// first round.
func WithExtraContext(extra map[string]any) NamespaceOption {
	return func(ns *Namespace) { ns.extra = normalizeMap(extra) }
}

// WithLogger sets the logger used for resolution tracing.
func WithLogger(logger *slog.Logger) NamespaceOption {
	return func(ns *Namespace) { ns.logger = logger }
}

// NewNamespace builds a resolver over the full parameter mapping. Every
// Expression is reset to its pre-sequence state, and the first round is
// started.
func NewNamespace(definitions map[string]any, opts ...NamespaceOption) *Namespace {
	ns := &Namespace{
		logger:      slog.Default(),
		definitions: make(map[string]any, len(definitions)),
		catch:       make(map[string]bool),
		context:     make(map[string]any),
	}
	for name, def := range definitions {
		if e, ok := def.(*Expression); ok {
			if e.Trigger() != "" {
				ns.catch[e.Trigger()] = true
			}
			e.Reset()
			ns.definitions[name] = e
		} else {
			ns.definitions[name] = normalize(def)
		}
		ns.order = append(ns.order, name)
	}
	sort.Strings(ns.order)
	for _, opt := range opts {
		opt(ns)
	}
	extra := ns.extra
	ns.extra = nil
	ns.ResetValues(extra)
	return ns
}

// ResetValues starts a new round: resolved values are snapshotted as the
// old context for change detection, the working set is repopulated from
// the full mapping, and trigger bookkeeping is cleared. Generator state
// inside the expressions survives.
func (ns *Namespace) ResetValues(extra map[string]any) {
	ns.old = ns.context
	ns.context = make(map[string]any, len(ns.definitions))
	ns.pending = make(map[string]bool, len(ns.definitions))
	for name := range ns.definitions {
		ns.pending[name] = true
	}
	ns.extra = normalizeMap(extra)
	ns.triggered = map[string]bool{"": true} // expressions without a trigger always advance
	ns.inProgress = make(map[string]bool)
	ns.changed = nil
	ns.changedVal = make(map[string]any)
}

// ResetGenerator forces one expression back to its pre-sequence state
// without affecting the rest of the round.
func (ns *Namespace) ResetGenerator(name string) error {
	def, ok := ns.definitions[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	if e, ok := def.(*Expression); ok {
		e.Reset()
	}
	return nil
}

// SetValue eagerly records a value for the round ahead of lazy resolution,
// e.g. for caller-supplied trial context.
func (ns *Namespace) SetValue(name string, value any) {
	delete(ns.pending, name)
	ns.setValue(name, normalize(value))
}

// EvaluateValue resolves one parameter, recursively resolving its
// dependencies first. Values already resolved this round are returned
// without re-evaluation and without advancing any sequence.
func (ns *Namespace) EvaluateValue(name string, extra map[string]any) (any, error) {
	value, err := ns.resolve(name, normalizeMap(extra), false)
	if err != nil {
		return nil, err
	}
	ns.processNotifications()
	return value, nil
}

// EvaluateValues resolves every remaining pending parameter and returns
// the full resolved context. Resolution order among independent names
// follows sorted parameter name order.
func (ns *Namespace) EvaluateValues(extra map[string]any) (map[string]any, error) {
	extra = normalizeMap(extra)
	for {
		name, ok := ns.nextPending()
		if !ok {
			break
		}
		if _, err := ns.resolve(name, extra, false); err != nil {
			return nil, err
		}
		ns.processNotifications()
	}
	return ns.Context(), nil
}

// DryRun validates every definition by full resolution without consuming
// any sequence or memoizing results inside the expressions. Used for
// apply-time validation of pending edits.
func (ns *Namespace) DryRun(extra map[string]any) error {
	extra = normalizeMap(extra)
	for {
		name, ok := ns.nextPending()
		if !ok {
			return nil
		}
		if _, err := ns.resolve(name, extra, true); err != nil {
			return err
		}
	}
}

// Context returns a copy of the round's resolved values.
func (ns *Namespace) Context() map[string]any {
	out := make(map[string]any, len(ns.context))
	for k, v := range ns.context {
		out[k] = v
	}
	return out
}

// Resolved reports whether the name has been resolved this round.
func (ns *Namespace) Resolved(name string) bool {
	_, ok := ns.context[name]
	return ok
}

// ValueChanged reports whether a name's resolved value differs from the
// previous round's value.
func (ns *Namespace) ValueChanged(name string) bool {
	return !ValuesEqual(ns.old[name], ns.context[name])
}

// Definitions returns the namespace's definition mapping. The expressions
// are shared, not copied.
func (ns *Namespace) Definitions() map[string]any {
	out := make(map[string]any, len(ns.definitions))
	for k, v := range ns.definitions {
		out[k] = v
	}
	return out
}

func (ns *Namespace) nextPending() (string, bool) {
	for _, name := range ns.order {
		if ns.pending[name] {
			return name, true
		}
	}
	return "", false
}

func (ns *Namespace) resolve(name string, extra map[string]any, dryRun bool) (any, error) {
	ns.logger.Debug("evaluating value", "parameter", name)

	// Already resolved this round: the memoized value wins, and no
	// sequence advances.
	if value, ok := ns.context[name]; ok {
		return value, nil
	}
	if !ns.pending[name] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	delete(ns.pending, name)

	def := ns.definitions[name]
	e, ok := def.(*Expression)
	if !ok {
		// A raw value rather than an expression.
		ns.setValue(name, def)
		return def, nil
	}

	ns.inProgress[name] = true
	defer delete(ns.inProgress, name)

	// Dependencies strictly before dependents. Names absent from the
	// namespace are builtin references and are left to the evaluator.
	for _, dep := range e.Dependencies() {
		if ns.pending[dep] {
			ns.logger.Debug("evaluating dependency", "parameter", name, "dependency", dep)
			if _, err := ns.resolve(dep, extra, dryRun); err != nil {
				return nil, err
			}
		} else if ns.inProgress[dep] {
			return nil, fmt.Errorf("%w: %s depends on %s", ErrCircularDependency, name, dep)
		}
	}

	// Resolved values always take precedence over both extra-context
	// layers.
	env := make(map[string]any, len(ns.context)+len(ns.extra)+len(extra))
	for k, v := range ns.extra {
		env[k] = v
	}
	for k, v := range extra {
		env[k] = v
	}
	for k, v := range ns.context {
		env[k] = v
	}

	advance := ns.triggered[e.Trigger()]
	value, err := e.Evaluate(env, dryRun, advance)
	if err != nil && errors.Is(err, choice.ErrExhausted) && ns.catch[name] {
		// This name gates another expression's sequence: restart it and
		// mark the trigger as fired so dependents advance this round.
		ns.logger.Debug("sequence exhausted, resetting", "parameter", name)
		e.Reset()
		ns.triggered[name] = true
		value, err = e.Evaluate(env, dryRun, advance)
	}
	if err != nil {
		if errors.Is(err, choice.ErrExhausted) {
			// End of the trial sequence; let the loop owner decide.
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return nil, fmt.Errorf("evaluating %s (%q): %w", name, e.Source(), err)
	}
	ns.setValue(name, value)
	return value, nil
}

func (ns *Namespace) setValue(name string, value any) {
	ns.logger.Debug("setting value", "parameter", name, "value", value)
	ns.context[name] = value
	if !ValuesEqual(ns.old[name], value) {
		if _, queued := ns.changedVal[name]; !queued {
			ns.changed = append(ns.changed, name)
		}
		ns.changedVal[name] = value
	}
}

// processNotifications dispatches setter callbacks for changed values.
// Dispatch happens only after the outer resolution completes; a callback
// may re-enter the namespace and resolve further values, which are
// appended to the queue and drained here.
func (ns *Namespace) processNotifications() {
	if ns.observer == nil || ns.notifying {
		return
	}
	ns.notifying = true
	defer func() { ns.notifying = false }()
	for len(ns.changed) > 0 {
		name := ns.changed[0]
		ns.changed = ns.changed[1:]
		value := ns.changedVal[name]
		delete(ns.changedVal, name)
		ns.logger.Debug("notifying change", "parameter", name, "value", value)
		ns.observer.ParameterChanged(name, value)
	}
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}
