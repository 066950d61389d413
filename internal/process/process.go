// Package process finds, stops and relaunches the OBS process.
package process

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/agnivade/levenshtein"
	ps "github.com/shirou/gopsutil/v4/process"

	"github.com/omuapps/obssync/pkg/types"
)

// ErrNotFound is returned when no process matches.
var ErrNotFound = errors.New("process not found")

// Handle is a snapshot of a live OS process. Handles must not be kept across
// reconciliation passes because the OS reuses pids.
type Handle interface {
	PID() int32
	Name() string
	Cmdline(ctx context.Context) ([]string, error)
	Cwd(ctx context.Context) (string, error)
	// IsRunning queries the OS every time it is called.
	IsRunning(ctx context.Context) (bool, error)
	Signal(ctx context.Context, sig syscall.Signal) error
}

// Locator finds processes by executable name.
type Locator interface {
	FindByNames(ctx context.Context, names []string) (Handle, error)
}

// SystemLocator enumerates OS processes with gopsutil.
type SystemLocator struct{}

// NewLocator returns a Locator backed by the operating system.
func NewLocator() *SystemLocator {
	return &SystemLocator{}
}

// FindByNames returns the first process whose executable name is in names.
// The match is case-sensitive. Which process is returned when several match
// depends on OS enumeration order.
func (l *SystemLocator) FindByNames(ctx context.Context, names []string) (Handle, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	procs, err := ps.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // exited or not accessible
		}
		if want[name] {
			return &systemHandle{proc: p, name: name}, nil
		}
	}
	return nil, ErrNotFound
}

// Names returns the executable names of all visible processes.
func (l *SystemLocator) Names(ctx context.Context) ([]string, error) {
	procs, err := ps.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// Suggest returns the running process name closest to any of names, for
// diagnostics when nothing matched exactly. It returns "" when nothing is close.
func (l *SystemLocator) Suggest(ctx context.Context, names []string) (string, error) {
	running, err := l.Names(ctx)
	if err != nil {
		return "", err
	}
	return closest(running, names), nil
}

func closest(candidates, targets []string) string {
	best, bestDist := "", -1
	for _, target := range targets {
		limit := max(2, len(target)/3)
		for _, c := range candidates {
			d := levenshtein.ComputeDistance(c, target)
			if d == 0 || d > limit {
				continue
			}
			if bestDist < 0 || d < bestDist {
				best, bestDist = c, d
			}
		}
	}
	return best
}

// Attach returns a handle for a known pid.
func Attach(ctx context.Context, pid int32) (Handle, error) {
	p, err := ps.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return &systemHandle{proc: p, name: name}, nil
}

// CaptureLaunchSpec records how h was started so it can be relaunched after
// it exits.
func CaptureLaunchSpec(ctx context.Context, h Handle) (*types.LaunchSpec, error) {
	cmdline, err := h.Cmdline(ctx)
	if err != nil {
		return nil, fmt.Errorf("read command line of pid %d: %w", h.PID(), err)
	}
	cwd, err := h.Cwd(ctx)
	if err != nil {
		return nil, fmt.Errorf("read working directory of pid %d: %w", h.PID(), err)
	}
	return &types.LaunchSpec{Command: cmdline, WorkingDirectory: cwd}, nil
}

type systemHandle struct {
	proc *ps.Process
	name string
}

func (h *systemHandle) PID() int32 { return h.proc.Pid }

func (h *systemHandle) Name() string { return h.name }

func (h *systemHandle) Cmdline(ctx context.Context) ([]string, error) {
	return h.proc.CmdlineSliceWithContext(ctx)
}

func (h *systemHandle) Cwd(ctx context.Context) (string, error) {
	return h.proc.CwdWithContext(ctx)
}

func (h *systemHandle) IsRunning(ctx context.Context) (bool, error) {
	return h.proc.IsRunningWithContext(ctx)
}

func (h *systemHandle) Signal(ctx context.Context, sig syscall.Signal) error {
	return h.proc.SendSignalWithContext(ctx, sig)
}
