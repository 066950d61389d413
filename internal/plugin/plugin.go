// Package plugin is the entry point the host server calls on startup.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/omuapps/obssync/internal/logging"
	"github.com/omuapps/obssync/internal/permission"
	"github.com/omuapps/obssync/internal/reconcile"
	"github.com/omuapps/obssync/pkg/types"
)

// Host is what the plugin needs from the server it runs in.
type Host interface {
	Permissions() permission.Registry
}

// Runner performs a reconciliation pass.
type Runner interface {
	Run(ctx context.Context) (*types.Report, error)
}

// Plugin registers the plugin's permissions and keeps OBS reconciled.
type Plugin struct {
	runner Runner
	log    zerolog.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu      sync.RWMutex
	last    *types.Report
	lastErr error
}

// New creates a plugin that reconciles with runner.
func New(runner Runner) *Plugin {
	return &Plugin{runner: runner, log: logging.Component("plugin")}
}

// OnStartServer registers the permission descriptors with the host and starts
// a reconciliation pass in the background. It does not wait for the pass.
func (p *Plugin) OnStartServer(ctx context.Context, host Host) error {
	if err := host.Permissions().Register(permission.Descriptors()...); err != nil {
		return fmt.Errorf("register permissions: %w", err)
	}
	p.Trigger(ctx)
	return nil
}

// Trigger starts a pass unless one is already running, and reports whether
// it started one.
func (p *Plugin) Trigger(ctx context.Context) bool {
	if !p.running.CompareAndSwap(false, true) {
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)

		report, err := p.runner.Run(ctx)
		switch {
		case errors.Is(err, reconcile.ErrBusy):
			p.log.Warn().Msg("another reconciliation is running, skipped")
			return
		case err != nil:
			p.log.Error().Err(err).Msg("reconciliation finished with errors")
		default:
			p.log.Info().Bool("changed", report.Changed()).Msg("reconciliation finished")
		}

		p.mu.Lock()
		p.last, p.lastErr = report, err
		p.mu.Unlock()
	}()
	return true
}

// Running reports whether a pass is in progress.
func (p *Plugin) Running() bool {
	return p.running.Load()
}

// Wait blocks until the background pass, if any, has finished.
func (p *Plugin) Wait() {
	p.wg.Wait()
}

// Last returns the report and error of the most recent pass started by this plugin.
func (p *Plugin) Last() (*types.Report, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.lastErr
}
