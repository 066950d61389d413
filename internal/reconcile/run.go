package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/omuapps/obssync/internal/event"
	"github.com/omuapps/obssync/internal/lifecycle"
	"github.com/omuapps/obssync/internal/python"
	"github.com/omuapps/obssync/internal/storage"
	"github.com/omuapps/obssync/pkg/types"
)

// LockFile is the run lock in the state directory.
const LockFile = "reconcile.lock"

const lockRetry = 100 * time.Millisecond

// Run performs one reconciliation pass:
//
//  1. compute the desired interpreter directory;
//  2. if global.ini disagrees, stop OBS (with confirmation), re-read the file
//     OBS rewrote on exit, apply the setting and write it;
//  3. write the launcher registration file if it changed;
//  4. register the launcher in every scene collection, even when the
//     operator refused to stop OBS;
//  5. relaunch OBS if this pass stopped it, whether or not the later steps
//     succeeded.
//
// Step failures are collected in the report. The returned error is the
// first failure, or ErrBusy when another pass is running.
func (r *Reconciler) Run(ctx context.Context) (*types.Report, error) {
	unlock, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	report := &types.Report{
		ID:     ulid.Make().String(),
		DryRun: r.opts.DryRun,
		Time:   types.ReportTime{Started: time.Now().UnixMilli()},
	}
	r.opts.Publish(event.Event{Type: event.ReconcileStarted, Data: event.ReconcileStartedData{ID: report.ID, DryRun: report.DryRun}})
	log := r.log.With().Str("run", report.ID).Bool("dryRun", r.opts.DryRun).Logger()
	log.Info().Str("obsDir", r.opts.OBSDir).Msg("reconciliation started")

	var firstErr error
	fail := func(step string, err error) {
		log.Error().Err(err).Str("step", step).Msg("reconciliation step failed")
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", step, err))
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", step, err)
		}
	}

	res, err := r.resolver.Resolve(ctx)
	if err != nil {
		fail("interpreter", err)
	} else {
		report.Desired = res.Directory
	}

	var outcome *lifecycle.Outcome
	if res != nil {
		outcome = r.applyInterpreter(ctx, report, res.Directory, fail)
	}

	if res != nil {
		r.writeLauncher(report, res, fail)
	}

	scenes, err := r.registerScenes(ctx, r.ScenesDir(), r.LauncherPath())
	if err != nil {
		fail("scenes", err)
	}
	if scenes != nil {
		report.ScenesChanged = scenes.Changed()
		report.ScenesFailed = scenes.Failed()
		for _, o := range scenes.Outcomes {
			if o.Err != nil {
				fail("scene "+filepath.Base(o.File), o.Err)
			}
		}
	}

	if outcome != nil {
		r.relaunch(ctx, report, outcome)
	}

	report.Time.Finished = time.Now().UnixMilli()
	if !r.opts.DryRun && r.opts.Reports != nil {
		if err := r.opts.Reports.Save(ctx, report); err != nil {
			log.Warn().Err(err).Msg("report not saved")
		}
	}
	r.opts.Publish(event.Event{Type: event.ReconcileFinished, Data: event.ReconcileFinishedData{Report: report}})
	log.Info().
		Bool("changed", report.Changed()).
		Bool("interpreterChanged", report.InterpreterChanged).
		Bool("launcherChanged", report.LauncherChanged).
		Strs("scenesChanged", report.ScenesChanged).
		Int("errors", len(report.Errors)).
		Msg("reconciliation finished")

	return report, firstErr
}

func (r *Reconciler) acquire() (func(), error) {
	lock, err := r.runLock()
	if lock == nil || err != nil {
		return func() {}, err
	}
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() { _ = lock.Unlock() }, nil
}

// acquireWait blocks until the run lock is free or ctx is done.
func (r *Reconciler) acquireWait(ctx context.Context) (func(), error) {
	lock, err := r.runLock()
	if lock == nil || err != nil {
		return func() {}, err
	}
	if err := lock.LockContext(ctx, lockRetry); err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	return func() { _ = lock.Unlock() }, nil
}

// runLock returns nil when locking is disabled.
func (r *Reconciler) runLock() (*storage.FileLock, error) {
	if r.opts.StateDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(r.opts.StateDir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return storage.NewFileLock(filepath.Join(r.opts.StateDir, LockFile)), nil
}

// SyncScenes registers the launcher in every scene collection under the run
// lock. It waits for a running pass to finish instead of failing with ErrBusy.
func (r *Reconciler) SyncScenes(ctx context.Context) (bool, error) {
	unlock, err := r.acquireWait(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()
	return r.ReconcileSceneRegistrations(ctx, r.ScenesDir(), r.LauncherPath())
}

// applyInterpreter updates global.ini. It returns the lifecycle outcome when
// OBS had to be located, nil otherwise.
func (r *Reconciler) applyInterpreter(ctx context.Context, report *types.Report, desired string, fail func(string, error)) *lifecycle.Outcome {
	path := r.GlobalConfigPath()

	doc, err := loadGlobalConfig(path)
	if err != nil {
		// Malformed files are reported and left alone.
		fail("global.ini", err)
		return nil
	}
	previous, _ := doc.Get(PythonSection, "Path64bit")
	report.Previous = previous

	probe := doc.Clone()
	if !reconcileInterpreter(probe, desired) {
		r.log.Debug().Str("desired", desired).Msg("interpreter setting up to date")
		return nil
	}

	if r.opts.DryRun {
		report.InterpreterChanged = true
		if r.opts.DiffOut != nil {
			if diff := UnifiedDiff(GlobalConfig, string(doc.Serialize()), string(probe.Serialize())); diff != "" {
				fmt.Fprint(r.opts.DiffOut, diff)
			}
		}
		return nil
	}

	outcome, err := r.lifecycle.EnsureStopped(ctx, r.opts.ProcessNames)
	report.Lifecycle = lifecycleReport(outcome, err)
	if err != nil {
		if errors.Is(err, lifecycle.ErrUserAborted) {
			r.log.Warn().Msg("OBS left running, interpreter setting not changed")
		}
		fail("stop OBS", err)
		return outcome
	}

	// OBS rewrites global.ini when it exits, so apply to a fresh read.
	fresh, err := loadGlobalConfig(path)
	if err != nil {
		fail("global.ini", err)
		return outcome
	}
	if !reconcileInterpreter(fresh, desired) {
		return outcome
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fail("global.ini", err)
		return outcome
	}
	if err := storage.WriteFileAtomic(path, fresh.Serialize(), 0644); err != nil {
		fail("global.ini", err)
		return outcome
	}

	report.InterpreterChanged = true
	for _, key := range InterpreterKeys {
		r.opts.Publish(event.Event{Type: event.SettingUpdated, Data: event.SettingUpdatedData{
			File:     path,
			Section:  PythonSection,
			Key:      key,
			Previous: previous,
			Value:    python.Normalize(desired),
		}})
	}
	r.log.Info().Str("previous", previous).Str("desired", desired).Msg("interpreter setting updated")
	return outcome
}

func (r *Reconciler) writeLauncher(report *types.Report, res *python.Resolution, fail func(string, error)) {
	companion := r.opts.Companion
	if companion.Python == "" && res.Interpreter != nil {
		companion.Python = res.Interpreter.Executable
	}

	changed, reg, err := companion.Write(r.opts.DryRun)
	if err != nil {
		fail("launcher", err)
		return
	}
	report.LauncherChanged = changed
	if changed && !r.opts.DryRun {
		r.opts.Publish(event.Event{Type: event.LauncherWritten, Data: event.LauncherWrittenData{File: companion.ConfigPath(), Registration: reg}})
	}
}

func (r *Reconciler) relaunch(ctx context.Context, report *types.Report, outcome *lifecycle.Outcome) {
	if outcome.Final != lifecycle.Stopped || !r.opts.Relaunch {
		r.lifecycle.Finish()
		return
	}

	_, err := r.lifecycle.Relaunch(ctx, outcome.Launch)
	if report.Lifecycle == nil {
		report.Lifecycle = lifecycleReport(outcome, nil)
	}
	if err != nil {
		// Not fatal: the operator can start OBS by hand.
		report.Lifecycle.Error = err.Error()
		report.Errors = append(report.Errors, err.Error())
		return
	}
	report.Lifecycle.Relaunched = !outcome.Launch.Empty()
	report.Lifecycle.FinalState = lifecycle.Done.String()
}

func lifecycleReport(outcome *lifecycle.Outcome, err error) *types.LifecycleReport {
	lr := &types.LifecycleReport{}
	if outcome != nil {
		lr.WasRunning = outcome.WasRunning
		lr.FinalState = outcome.Final.String()
		lr.Launch = outcome.Launch
	}
	if err != nil {
		lr.Error = err.Error()
	}
	return lr
}

// Preview reports what Run would change without writing or touching OBS.
func (r *Reconciler) Preview(ctx context.Context) (*types.Report, error) {
	opts := r.opts
	opts.DryRun = true
	opts.Reports = nil
	return New(opts, r.resolver, r.lifecycle).Run(ctx)
}

// CurrentInterpreter returns both interpreter values stored in global.ini.
func (r *Reconciler) CurrentInterpreter() (map[string]string, error) {
	doc, err := loadGlobalConfig(r.GlobalConfigPath())
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(InterpreterKeys))
	for _, key := range InterpreterKeys {
		if v, ok := doc.Get(PythonSection, key); ok {
			values[key] = v
		}
	}
	return values, nil
}
