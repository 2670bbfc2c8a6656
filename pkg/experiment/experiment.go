package experiment

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bburan/pyexperiment/internal/choice"
	"github.com/bburan/pyexperiment/internal/controller"
	"github.com/bburan/pyexperiment/internal/paradigm"
	"github.com/bburan/pyexperiment/internal/store"
)

// TrialFunc runs one trial against the resolved parameter context and
// returns outcome values to record alongside it.
type TrialFunc func(trial int, context map[string]any) (map[string]any, error)

// Runtime ties a paradigm, a recorder, and the controller into a runnable
// experiment.
type Runtime struct {
	logger     *slog.Logger
	recorder   store.Recorder
	sqlitePath string
	ownsRec    bool
	setters    map[string]controller.Setter
	sources    []paradigm.Source
	extra      map[string]any
	maxTrials  int
	onTrial    TrialFunc

	ctrl *controller.Controller
}

// New creates a runtime over the given paradigm and initializes the
// parameter context.
func New(p *paradigm.Paradigm, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		logger:  slog.Default(),
		setters: make(map[string]controller.Setter),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sqlitePath != "" {
		rec, err := store.NewSQLite(r.sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("opening recorder: %w", err)
		}
		r.recorder = rec
		r.ownsRec = true
	}

	ctrlOpts := []controller.Option{
		controller.WithLogger(r.logger),
		controller.WithExtraContext(r.extra),
	}
	if r.recorder != nil {
		ctrlOpts = append(ctrlOpts, controller.WithRecorder(r.recorder))
	}
	for name, s := range r.setters {
		ctrlOpts = append(ctrlOpts, controller.WithSetter(name, s))
	}
	r.ctrl = controller.New(p, ctrlOpts...)
	if err := r.ctrl.InitializeContext(r.sources...); err != nil {
		r.closeRecorder()
		return nil, err
	}
	return r, nil
}

// Controller exposes the underlying controller for operator interaction
// (pending edits, pause/stop requests, value queries).
func (r *Runtime) Controller() *controller.Controller { return r.ctrl }

// Run executes trials until the trial sequence is exhausted, the trial cap
// is reached, or a stop or pause is requested. A paused runtime resumes
// from where it left off when Run is called again.
func (r *Runtime) Run() error {
	c := r.ctrl
	switch c.State() {
	case controller.Initialized:
		if err := c.Start(); err != nil {
			return err
		}
	case controller.Paused:
		if err := c.Resume(); err != nil {
			return err
		}
	case controller.Running:
	default:
		return fmt.Errorf("cannot run from state %s", c.State())
	}

	for {
		if c.StopRequested() {
			break
		}
		if c.PauseRequested() {
			return c.Pause()
		}
		if r.maxTrials > 0 && c.Trial() >= r.maxTrials {
			r.logger.Info("trial cap reached", "trials", c.Trial())
			break
		}

		context, err := c.NextTrial(nil)
		if err != nil {
			if errors.Is(err, choice.ErrExhausted) {
				r.logger.Info("trial sequence exhausted", "trials", c.Trial())
				break
			}
			c.Stop()
			return err
		}

		var outcome map[string]any
		if r.onTrial != nil {
			outcome, err = r.onTrial(c.Trial(), context)
			if err != nil {
				c.Stop()
				return fmt.Errorf("trial %d: %w", c.Trial(), err)
			}
		}
		if err := c.LogTrial(outcome); err != nil {
			c.Stop()
			return fmt.Errorf("recording trial %d: %w", c.Trial(), err)
		}
	}
	return c.Stop()
}

// Trials returns the number of trials started.
func (r *Runtime) Trials() int { return r.ctrl.Trial() }

// Close releases the recorder if the runtime owns it.
func (r *Runtime) Close() error {
	return r.closeRecorder()
}

func (r *Runtime) closeRecorder() error {
	if r.ownsRec && r.recorder != nil {
		err := r.recorder.Close()
		r.recorder = nil
		return err
	}
	return nil
}
