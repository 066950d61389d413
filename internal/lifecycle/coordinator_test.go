package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omuapps/obssync/internal/event"
	"github.com/omuapps/obssync/internal/process"
	"github.com/omuapps/obssync/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProc struct {
	pid     int32
	running atomic.Bool
}

func newFakeProc() *fakeProc {
	p := &fakeProc{pid: 4242}
	p.running.Store(true)
	return p
}

func (p *fakeProc) PID() int32   { return p.pid }
func (p *fakeProc) Name() string { return "obs64.exe" }
func (p *fakeProc) Cmdline(context.Context) ([]string, error) {
	return []string{`C:\obs\bin\64bit\obs64.exe`, "--startreplaybuffer"}, nil
}
func (p *fakeProc) Cwd(context.Context) (string, error) { return `C:\obs\bin\64bit`, nil }
func (p *fakeProc) IsRunning(context.Context) (bool, error) {
	return p.running.Load(), nil
}
func (p *fakeProc) Signal(context.Context, syscall.Signal) error { return nil }

type fakeLocator struct {
	proc *fakeProc
	err  error
}

func (l *fakeLocator) FindByNames(context.Context, []string) (process.Handle, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.proc == nil || !l.proc.running.Load() {
		return nil, process.ErrNotFound
	}
	return l.proc, nil
}

type fakeStopper struct {
	calls atomic.Int32
	exits bool
	err   error
}

func (s *fakeStopper) Stop(_ context.Context, h process.Handle) error {
	s.calls.Add(1)
	if s.err != nil {
		return s.err
	}
	if s.exits {
		h.(*fakeProc).running.Store(false)
	}
	return nil
}

type fakeDialog struct {
	mu           sync.Mutex
	confirm      Choice
	confirmErr   error
	blockConfirm bool
	retries      []RetryChoice
	onRetry      func()
	confirmCalls int
	retryCalls   int
}

func (d *fakeDialog) Confirm(ctx context.Context, question string) (Choice, error) {
	d.mu.Lock()
	d.confirmCalls++
	block := d.blockConfirm
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return Decline, ctx.Err()
	}
	return d.confirm, d.confirmErr
}

func (d *fakeDialog) ConfirmRetry(ctx context.Context, question string) (RetryChoice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.retryCalls++
	if d.onRetry != nil {
		d.onRetry()
	}
	if len(d.retries) == 0 {
		return Cancel, nil
	}
	answer := d.retries[0]
	d.retries = d.retries[1:]
	return answer, nil
}

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) publish(e event.Event) {
	if data, ok := e.Data.(event.LifecycleChangedData); ok {
		r.mu.Lock()
		r.states = append(r.states, data.To)
		r.mu.Unlock()
	}
}

func newCoordinator(loc process.Locator, stop process.GracefulStopper, dlg Dialog, rec *recorder) *Coordinator {
	cfg := Config{
		Locator:      loc,
		Stopper:      stop,
		Dialog:       dlg,
		PollInterval: 5 * time.Millisecond,
		ExitWindow:   25 * time.Millisecond,
		Launch: func(*types.LaunchSpec) (int, error) {
			return 0, errors.New("unexpected launch")
		},
	}
	if rec != nil {
		cfg.Publish = rec.publish
	} else {
		cfg.Publish = func(event.Event) {}
	}
	return New(cfg)
}

func TestEnsureStopped_NotRunningShowsNoDialog(t *testing.T) {
	dlg := &fakeDialog{}
	stop := &fakeStopper{}
	c := newCoordinator(&fakeLocator{}, stop, dlg, nil)

	out, err := c.EnsureStopped(context.Background(), []string{"obs64.exe"})
	require.NoError(t, err)

	assert.False(t, out.WasRunning)
	assert.Nil(t, out.Launch)
	assert.Equal(t, Done, out.Final)
	assert.Zero(t, dlg.confirmCalls)
	assert.Zero(t, stop.calls.Load())
	assert.Equal(t, []State{Idle, Locating, Done}, c.History())
}

func TestEnsureStopped_ProceedAndExit(t *testing.T) {
	proc := newFakeProc()
	dlg := &fakeDialog{confirm: Proceed}
	stop := &fakeStopper{exits: true}
	rec := &recorder{}
	c := newCoordinator(&fakeLocator{proc: proc}, stop, dlg, rec)

	out, err := c.EnsureStopped(context.Background(), []string{"obs64.exe"})
	require.NoError(t, err)

	assert.True(t, out.WasRunning)
	assert.Equal(t, int32(4242), out.PID)
	assert.Equal(t, Stopped, out.Final)
	require.NotNil(t, out.Launch)
	assert.Equal(t, []string{`C:\obs\bin\64bit\obs64.exe`, "--startreplaybuffer"}, out.Launch.Command)
	assert.Equal(t, `C:\obs\bin\64bit`, out.Launch.WorkingDirectory)

	assert.Equal(t, int32(1), stop.calls.Load())
	assert.Equal(t, 1, dlg.confirmCalls)
	assert.Zero(t, dlg.retryCalls)
	assert.Equal(t, []State{Idle, Locating, Confirming, Stopping, WaitingExit, Stopped}, c.History())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"locating", "confirming", "stopping", "waiting_exit", "stopped"}, rec.states)
}

func TestEnsureStopped_DeclineKeepsProcess(t *testing.T) {
	proc := newFakeProc()
	stop := &fakeStopper{exits: true}
	c := newCoordinator(&fakeLocator{proc: proc}, stop, &fakeDialog{confirm: Decline}, nil)

	out, err := c.EnsureStopped(context.Background(), []string{"obs64.exe"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUserAborted))

	assert.Equal(t, Aborted, out.Final)
	assert.NotNil(t, out.Launch, "launch spec is captured before confirmation")
	assert.Zero(t, stop.calls.Load())
	assert.True(t, proc.running.Load())
}

func TestEnsureStopped_RetryThenCancelSendsStopOnce(t *testing.T) {
	proc := newFakeProc()
	stop := &fakeStopper{}
	dlg := &fakeDialog{confirm: Proceed, retries: []RetryChoice{Retry, Cancel}}
	c := newCoordinator(&fakeLocator{proc: proc}, stop, dlg, nil)

	out, err := c.EnsureStopped(context.Background(), []string{"obs64.exe"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUserAborted))

	assert.Equal(t, Aborted, out.Final)
	assert.Equal(t, int32(1), stop.calls.Load())
	assert.Equal(t, 2, dlg.retryCalls)
	assert.Equal(t, []State{
		Idle, Locating, Confirming, Stopping,
		WaitingExit, Confirming,
		WaitingExit, Confirming,
		Aborted,
	}, c.History())
}

func TestEnsureStopped_RetryUntilExit(t *testing.T) {
	proc := newFakeProc()
	dlg := &fakeDialog{confirm: Proceed, retries: []RetryChoice{Retry}}
	dlg.onRetry = func() { proc.running.Store(false) }
	c := newCoordinator(&fakeLocator{proc: proc}, &fakeStopper{}, dlg, nil)

	out, err := c.EnsureStopped(context.Background(), []string{"obs64.exe"})
	require.NoError(t, err)
	assert.Equal(t, Stopped, out.Final)
	assert.Equal(t, 1, dlg.retryCalls)
}

func TestEnsureStopped_PromptClosesWhenProcessExits(t *testing.T) {
	proc := newFakeProc()
	stop := &fakeStopper{}
	dlg := &fakeDialog{blockConfirm: true}
	c := newCoordinator(&fakeLocator{proc: proc}, stop, dlg, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		proc.running.Store(false)
	}()

	out, err := c.EnsureStopped(context.Background(), []string{"obs64.exe"})
	require.NoError(t, err)
	assert.Equal(t, Stopped, out.Final)
	assert.Zero(t, stop.calls.Load(), "no stop request when the operator closed OBS")
}

func TestEnsureStopped_CallerCancellation(t *testing.T) {
	proc := newFakeProc()
	dlg := &fakeDialog{blockConfirm: true}
	c := newCoordinator(&fakeLocator{proc: proc}, &fakeStopper{}, dlg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out, err := c.EnsureStopped(ctx, []string{"obs64.exe"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, Aborted, out.Final)

	var stateErr *StateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, Confirming, stateErr.State)
}

func TestEnsureStopped_StopFailure(t *testing.T) {
	proc := newFakeProc()
	stop := &fakeStopper{err: process.ErrUnsupportedPlatform}
	c := newCoordinator(&fakeLocator{proc: proc}, stop, &fakeDialog{confirm: Proceed}, nil)

	out, err := c.EnsureStopped(context.Background(), []string{"obs64.exe"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, process.ErrUnsupportedPlatform))
	assert.Equal(t, Aborted, out.Final)

	var stateErr *StateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, Stopping, stateErr.State)
}

func TestEnsureStopped_LocatorFailure(t *testing.T) {
	c := newCoordinator(&fakeLocator{err: errors.New("permission denied")}, &fakeStopper{}, &fakeDialog{}, nil)

	out, err := c.EnsureStopped(context.Background(), []string{"obs64.exe"})
	var stateErr *StateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, Locating, stateErr.State)

	require.NotNil(t, out)
	assert.Equal(t, Aborted, out.Final)
	assert.False(t, out.WasRunning)
	assert.Equal(t, Aborted, c.State())

	c.Finish()
	assert.Equal(t, Done, c.State())
}

func TestEnsureStopped_DialogFailure(t *testing.T) {
	proc := newFakeProc()
	dlg := &fakeDialog{confirmErr: errors.New("no terminal")}
	c := newCoordinator(&fakeLocator{proc: proc}, &fakeStopper{}, dlg, nil)

	out, err := c.EnsureStopped(context.Background(), []string{"obs64.exe"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUserAborted))
	assert.Equal(t, Aborted, out.Final)
}

func TestRelaunch(t *testing.T) {
	var launched *types.LaunchSpec
	c := New(Config{
		Locator: &fakeLocator{},
		Stopper: &fakeStopper{},
		Dialog:  &fakeDialog{},
		Publish: func(event.Event) {},
		Launch: func(spec *types.LaunchSpec) (int, error) {
			launched = spec
			return 99, nil
		},
	})

	pid, err := c.Relaunch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, pid)
	assert.Nil(t, launched)
	assert.Equal(t, Done, c.State())

	spec := &types.LaunchSpec{Command: []string{"obs"}, WorkingDirectory: "/opt/obs"}
	pid, err = c.Relaunch(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, 99, pid)
	assert.Same(t, spec, launched)
	assert.Equal(t, Done, c.State())
}

func TestRelaunch_FailureIsWrapped(t *testing.T) {
	c := newCoordinator(&fakeLocator{}, &fakeStopper{}, &fakeDialog{}, nil)

	_, err := c.Relaunch(context.Background(), &types.LaunchSpec{Command: []string{"obs"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRelaunchFailed))
	assert.ErrorContains(t, err, "unexpected launch")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "waiting_exit", WaitingExit.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "state(42)", State(42).String())
}
