// Package lifecycle runs a task against a throwaway profile: create the
// profile, start and attach its browser, run the task, then tear
// everything down again, whatever happened in between.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/adspower/pkg/browser"
	"github.com/entrhq/adspower/pkg/logging"
	"github.com/entrhq/adspower/pkg/metrics"
	"github.com/entrhq/adspower/pkg/profile"
)

// Teardown step names, used in logs and metrics.
const (
	stepRelease = "release"
	stepStop    = "stop"
	stepDelete  = "delete"
)

// Registry creates and deletes profiles.
type Registry interface {
	Create(ctx context.Context, cfg profile.Config) (profile.ID, error)
	Delete(ctx context.Context, id profile.ID) error
}

// Controller stops browsers and hands out sessions.
type Controller interface {
	Stop(ctx context.Context, id profile.ID) error
	Sessions() *browser.SessionCache
}

// Task is the work done with an attached session.
type Task[T any] func(ctx context.Context, s *browser.Session) (T, error)

// Orchestrator drives profile runs. It holds no per-run state and may be
// shared by concurrent runs; each run works on its own profile.
type Orchestrator struct {
	registry   Registry
	controller Controller
	headless   bool
	profileCfg profile.Config
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHeadless sets the browser mode. Runs are headless by default.
func WithHeadless(headless bool) Option {
	return func(o *Orchestrator) { o.headless = headless }
}

// WithProfileConfig sets the provisioning parameters of created profiles.
func WithProfileConfig(cfg profile.Config) Option {
	return func(o *Orchestrator) { o.profileCfg = cfg }
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator.
func New(registry Registry, controller Controller, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:   registry,
		controller: controller,
		headless:   true,
		profileCfg: profile.DefaultConfig(""),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithProfile runs task against a fresh profile and always returns an Outcome.
//
// On success the session is released, the browser stopped and the profile
// deleted; any of those failing fails the run. On failure the same teardown
// runs best-effort and its errors land in Outcome.Suppressed. A panic in
// any step is reported as a PanicError after the same teardown.
func WithProfile[T any](ctx context.Context, o *Orchestrator, task Task[T]) (out Outcome[T]) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cause := &PanicError{ProfileID: out.ProfileID, State: out.State, Value: r}
		if out.ProfileID == "" {
			out = fail(o, out, cause)
			return
		}
		out = abort(ctx, o, out, cause)
	}()

	id, err := o.registry.Create(ctx, o.profileCfg)
	if err != nil {
		return fail(o, out, err)
	}
	out.ProfileID = id
	out.State = StateCreated
	o.logger.Infof("profile %s created", id)

	session, err := o.controller.Sessions().Acquire(ctx, id, o.headless)
	if err != nil {
		if browserLaunched(err) {
			out.State = StateBrowserStarted
		}
		return abort(ctx, o, out, err)
	}
	out.State = StateSessionAttached
	o.logger.Debugf("session attached for profile %s", id)

	out.State = StateTaskRunning

	value, err := runTask(ctx, id, session, task)
	if err != nil {
		return abort(ctx, o, out, err)
	}
	out.Value = value

	if errs := teardown(ctx, o, &out); len(errs) > 0 {
		return fail(o, out, fmt.Errorf("teardown of profile %s failed: %w", id, errors.Join(errs...)))
	}

	out.Status = StatusSuccess
	o.metrics.RecordOutcome(true)
	o.logger.Infof("profile %s run finished", id)
	return out
}

// browserLaunched reports whether an Acquire failure came after the daemon
// had already started the browser.
func browserLaunched(err error) bool {
	var ctrlErr *browser.ControllerError
	if !errors.As(err, &ctrlErr) {
		return false
	}
	return ctrlErr.Op == "attach" || errors.Is(err, browser.ErrNoEndpoint)
}

func runTask[T any](ctx context.Context, id profile.ID, s *browser.Session, task Task[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskError{ProfileID: id, Panic: r}
		}
	}()

	value, err = task(ctx, s)
	if err != nil {
		return value, &TaskError{ProfileID: id, Err: err}
	}
	return value, nil
}

// abort tears down after a failure without letting cleanup errors replace it.
func abort[T any](ctx context.Context, o *Orchestrator, out Outcome[T], cause error) Outcome[T] {
	o.logger.Errorf("profile %s run failed in state %s: %v", out.ProfileID, out.State, cause)
	for _, err := range teardown(ctx, o, &out) {
		o.logger.Warnf("suppressed cleanup error for profile %s: %v", out.ProfileID, err)
		out.Suppressed = append(out.Suppressed, err)
	}
	return fail(o, out, cause)
}

func fail[T any](o *Orchestrator, out Outcome[T], err error) Outcome[T] {
	out.Err = err
	out.Status = err.Error()
	o.metrics.RecordOutcome(false)
	return out
}

// teardown releases the session, stops the browser and deletes the profile,
// attempting every step. It must not be skipped because ctx ended.
// A step only moves the state forward from a state that needed it.
func teardown[T any](ctx context.Context, o *Orchestrator, out *Outcome[T]) []error {
	ctx = context.WithoutCancel(ctx)
	id := out.ProfileID

	var errs []error
	step := func(name string, from, reached State, fn func() error) {
		if err := guard(fn); err != nil {
			o.metrics.RecordCleanupError(name)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		if out.State >= from && reached > out.State {
			out.State = reached
		}
	}

	step(stepRelease, StateSessionAttached, StateSessionReleased, func() error {
		return o.controller.Sessions().Release(id)
	})
	step(stepStop, StateBrowserStarted, StateBrowserStopped, func() error {
		return o.controller.Stop(ctx, id)
	})
	step(stepDelete, StateCreated, StateDeleted, func() error {
		return o.registry.Delete(ctx, id)
	})

	if out.State == StateDeleted {
		out.ProfileID = ""
	}
	return errs
}

// guard turns a panicking cleanup step into an error so the remaining
// steps still run.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
