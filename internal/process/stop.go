package process

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"syscall"
)

// ErrUnsupportedPlatform is returned when no graceful-stop mechanism is known.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// GracefulStopper asks a process to exit in a way it can observe and handle.
type GracefulStopper interface {
	Stop(ctx context.Context, h Handle) error
}

// SignalStopper sends a signal, SIGINT by default. OBS treats SIGINT like
// closing its main window.
type SignalStopper struct {
	Signal syscall.Signal
}

func (s SignalStopper) Stop(ctx context.Context, h Handle) error {
	sig := s.Signal
	if sig == 0 {
		sig = syscall.SIGINT
	}
	if err := h.Signal(ctx, sig); err != nil {
		return fmt.Errorf("signal pid %d: %w", h.PID(), err)
	}
	return nil
}

// WindowCloser posts a close request to the process's top-level windows.
type WindowCloser struct{}

func (WindowCloser) Stop(ctx context.Context, h Handle) error {
	if err := closeProcessWindows(uint32(h.PID())); err != nil {
		return fmt.Errorf("close windows of pid %d: %w", h.PID(), err)
	}
	return nil
}

type unsupportedStopper struct {
	goos string
}

func (u unsupportedStopper) Stop(ctx context.Context, h Handle) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedPlatform, u.goos)
}

// StopperFor selects the graceful-stop mechanism for goos. Unknown platforms
// get a stopper that always fails with ErrUnsupportedPlatform.
func StopperFor(goos string) GracefulStopper {
	switch goos {
	case "windows":
		return WindowCloser{}
	case "linux", "darwin":
		return SignalStopper{Signal: syscall.SIGINT}
	default:
		return unsupportedStopper{goos: goos}
	}
}

// DefaultStopper is the stopper for the running platform.
func DefaultStopper() GracefulStopper {
	return StopperFor(runtime.GOOS)
}

// DefaultNames are the OBS executable names for goos.
func DefaultNames(goos string) []string {
	switch goos {
	case "windows":
		return []string{"obs64.exe", "obs32.exe"}
	case "darwin":
		return []string{"OBS", "obs"}
	default:
		return []string{"obs"}
	}
}
