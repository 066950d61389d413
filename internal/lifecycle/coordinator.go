package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/omuapps/obssync/internal/event"
	"github.com/omuapps/obssync/internal/logging"
	"github.com/omuapps/obssync/internal/process"
	"github.com/omuapps/obssync/pkg/types"
)

const (
	DefaultPollInterval = 200 * time.Millisecond
	DefaultExitWindow   = 3 * time.Second
)

var errStillRunning = errors.New("still running")

// Config wires a Coordinator. Locator, Stopper and Dialog are required.
type Config struct {
	Locator process.Locator
	Stopper process.GracefulStopper
	Dialog  Dialog
	// Launch starts a captured command. Defaults to process.Launch.
	Launch func(*types.LaunchSpec) (int, error)
	// Publish receives state transitions. Defaults to event.Publish.
	Publish func(event.Event)

	PollInterval time.Duration
	ExitWindow   time.Duration
	// Reason completes the confirmation question, e.g. "to update its settings".
	Reason string
}

// Outcome describes what EnsureStopped found and did.
type Outcome struct {
	WasRunning bool
	PID        int32
	Name       string
	// Launch is captured before any stop attempt; nil when the process was
	// not running or its command line could not be read.
	Launch *types.LaunchSpec
	Final  State
}

// Coordinator drives one process through Locating, Confirming, Stopping and
// WaitingExit. It is not safe for concurrent EnsureStopped calls.
type Coordinator struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	state   State
	pid     int32
	history []State
}

// New creates a coordinator, filling unset fields with defaults.
func New(cfg Config) *Coordinator {
	if cfg.Launch == nil {
		cfg.Launch = process.Launch
	}
	if cfg.Publish == nil {
		cfg.Publish = event.Publish
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ExitWindow <= 0 {
		cfg.ExitWindow = DefaultExitWindow
	}
	if cfg.Reason == "" {
		cfg.Reason = "so its settings can be updated"
	}
	return &Coordinator{
		cfg:   cfg,
		log:   logging.Component("lifecycle"),
		state: Idle,
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns every state entered since the last EnsureStopped call.
func (c *Coordinator) History() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]State(nil), c.history...)
}

func (c *Coordinator) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.history = append(c.history, to)
	pid := c.pid
	c.mu.Unlock()

	c.log.Debug().Stringer("from", from).Stringer("to", to).Int32("pid", pid).Msg("lifecycle transition")
	c.cfg.Publish(event.Event{
		Type: event.LifecycleChanged,
		Data: event.LifecycleChangedData{From: from.String(), To: to.String(), PID: pid},
	})
}

func (c *Coordinator) reset() {
	c.mu.Lock()
	c.state = Idle
	c.pid = 0
	c.history = []State{Idle}
	c.mu.Unlock()
}

// EnsureStopped makes sure no process named in names is running. If one is,
// its launch spec is captured, the operator is asked to confirm, a graceful
// stop is requested once and the coordinator waits for the process to exit,
// asking retry or cancel each time the exit window elapses.
//
// A process that is not running is a success with WasRunning false and no
// dialog. Declining or cancelling returns ErrUserAborted with the outcome.
// Every error comes with a non-nil outcome in the Aborted state.
func (c *Coordinator) EnsureStopped(ctx context.Context, names []string) (*Outcome, error) {
	c.reset()
	c.transition(Locating)

	h, err := c.cfg.Locator.FindByNames(ctx, names)
	if errors.Is(err, process.ErrNotFound) {
		c.transition(Done)
		return &Outcome{Final: Done}, nil
	}
	if err != nil {
		return c.abort(&Outcome{}, &StateError{State: Locating, Err: err})
	}

	c.mu.Lock()
	c.pid = h.PID()
	c.mu.Unlock()

	out := &Outcome{WasRunning: true, PID: h.PID(), Name: h.Name()}
	spec, err := process.CaptureLaunchSpec(ctx, h)
	if err != nil {
		c.log.Warn().Err(err).Msg("launch command not captured, relaunch disabled")
	} else {
		out.Launch = spec
		c.log.Info().Int32("pid", h.PID()).Str("command", process.FormatCommand(spec.Command)).Msg("captured launch command")
	}

	c.transition(Confirming)
	var choice Choice
	exited, err := c.prompt(ctx, h, func(pctx context.Context) error {
		var err error
		choice, err = c.cfg.Dialog.Confirm(pctx, fmt.Sprintf("%s (pid %d) is running and must be closed %s. Close it now?", h.Name(), h.PID(), c.cfg.Reason))
		return err
	})
	switch {
	case exited:
		return c.finishStopped(out), nil
	case err != nil:
		return c.abort(out, &StateError{State: Confirming, Err: err})
	case choice == Decline:
		return c.abort(out, fmt.Errorf("stop of %s declined: %w", h.Name(), ErrUserAborted))
	}

	c.transition(Stopping)
	if err := c.cfg.Stopper.Stop(ctx, h); err != nil {
		return c.abort(out, &StateError{State: Stopping, Err: err})
	}

	for {
		c.transition(WaitingExit)
		if c.waitExit(ctx, h) {
			break
		}
		if err := ctx.Err(); err != nil {
			return c.abort(out, &StateError{State: WaitingExit, Err: err})
		}

		c.transition(Confirming)
		var retry RetryChoice
		exited, err := c.prompt(ctx, h, func(pctx context.Context) error {
			var err error
			retry, err = c.cfg.Dialog.ConfirmRetry(pctx, fmt.Sprintf("%s (pid %d) is still running. Keep waiting?", h.Name(), h.PID()))
			return err
		})
		if exited {
			break
		}
		if err != nil {
			return c.abort(out, &StateError{State: Confirming, Err: err})
		}
		if retry == Cancel {
			return c.abort(out, fmt.Errorf("waiting for %s cancelled: %w", h.Name(), ErrUserAborted))
		}
	}

	return c.finishStopped(out), nil
}

func (c *Coordinator) finishStopped(out *Outcome) *Outcome {
	c.transition(Stopped)
	out.Final = Stopped
	c.log.Info().Int32("pid", out.PID).Msg("process stopped")
	return out
}

func (c *Coordinator) abort(out *Outcome, err error) (*Outcome, error) {
	c.transition(Aborted)
	out.Final = Aborted
	c.log.Warn().Err(err).Int32("pid", out.PID).Msg("process left running")
	return out, err
}

// prompt runs ask with a context that is cancelled as soon as h exits. It
// reports exited when the process went away while the question was open,
// in which case the answer is irrelevant.
func (c *Coordinator) prompt(ctx context.Context, h process.Handle, ask func(context.Context) error) (bool, error) {
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var gone atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pctx.Done():
				return
			case <-ticker.C:
				if !c.running(pctx, h) {
					gone.Store(true)
					cancel()
					return
				}
			}
		}
	}()

	err := ask(pctx)
	cancel()
	<-done

	if gone.Load() {
		c.log.Info().Int32("pid", h.PID()).Msg("process exited while prompt was open")
		return true, nil
	}
	return false, err
}

// waitExit polls until h exits or the exit window elapses.
func (c *Coordinator) waitExit(ctx context.Context, h process.Handle) bool {
	attempts := uint64(c.cfg.ExitWindow / c.cfg.PollInterval)
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.PollInterval), attempts),
		ctx,
	)
	err := backoff.Retry(func() error {
		if c.running(ctx, h) {
			return errStillRunning
		}
		return nil
	}, b)
	return err == nil
}

// running treats query errors as still running, so nothing is written while
// the process state is unknown.
func (c *Coordinator) running(ctx context.Context, h process.Handle) bool {
	ok, err := h.IsRunning(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Debug().Err(err).Int32("pid", h.PID()).Msg("process state query failed")
		}
		return true
	}
	return ok
}

// Relaunch starts spec again and finishes the state machine. An empty spec
// is a no-op. Failures wrap ErrRelaunchFailed and are meant for reporting.
func (c *Coordinator) Relaunch(ctx context.Context, spec *types.LaunchSpec) (int, error) {
	if spec.Empty() {
		c.transition(Done)
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		c.transition(Done)
		return 0, fmt.Errorf("%w: %w", ErrRelaunchFailed, err)
	}

	c.transition(Relaunching)
	pid, err := c.cfg.Launch(spec)
	c.transition(Done)
	if err != nil {
		c.log.Error().Err(err).Str("command", process.FormatCommand(spec.Command)).Msg("relaunch failed")
		return 0, fmt.Errorf("%w: %w", ErrRelaunchFailed, err)
	}
	c.log.Info().Int("pid", pid).Str("command", process.FormatCommand(spec.Command)).Msg("relaunched")
	return pid, nil
}

// Finish moves a stopped or aborted coordinator to Done without relaunching.
func (c *Coordinator) Finish() {
	if c.State() != Done {
		c.transition(Done)
	}
}
