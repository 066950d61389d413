// Package reconcile brings the OBS configuration in line with the companion
// installation: the python interpreter directory in global.ini, the launcher
// registration file and the launcher record in every scene collection.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/omuapps/obssync/internal/event"
	"github.com/omuapps/obssync/internal/inifile"
	"github.com/omuapps/obssync/internal/launcher"
	"github.com/omuapps/obssync/internal/lifecycle"
	"github.com/omuapps/obssync/internal/logging"
	"github.com/omuapps/obssync/internal/python"
	"github.com/omuapps/obssync/internal/scene"
	"github.com/omuapps/obssync/pkg/types"
)

const (
	// GlobalConfig is the OBS file holding the interpreter setting.
	GlobalConfig = "global.ini"
	// PythonSection is the global.ini section of the interpreter setting.
	PythonSection = "Python"
)

// InterpreterKeys are the per-bitness interpreter settings. Both must hold
// the desired directory.
var InterpreterKeys = []string{"Path32bit", "Path64bit"}

// ErrBusy is returned when another pass holds the run lock.
var ErrBusy = errors.New("reconciliation already in progress")

// Resolver computes the desired interpreter.
type Resolver interface {
	Resolve(ctx context.Context) (*python.Resolution, error)
}

// Lifecycle stops and relaunches OBS.
type Lifecycle interface {
	EnsureStopped(ctx context.Context, names []string) (*lifecycle.Outcome, error)
	Relaunch(ctx context.Context, spec *types.LaunchSpec) (int, error)
	Finish()
}

// Options configures a Reconciler.
type Options struct {
	// OBSDir contains global.ini and basic/scenes.
	OBSDir       string
	ProcessNames []string
	// Companion describes the launcher script. Its Python field is filled
	// from the resolved interpreter when empty.
	Companion launcher.Companion
	Scenes    scene.Options
	// Relaunch starts OBS again after it was stopped and something changed.
	Relaunch bool
	DryRun   bool
	// StateDir holds the run lock. Empty disables locking.
	StateDir string
	// Reports persists the last reports. Optional.
	Reports *Reports
	// DiffOut receives the global.ini diff in dry-run mode.
	DiffOut io.Writer
	Publish func(event.Event)
}

// Reconciler runs reconciliation passes. Passes are serialized by a file
// lock in StateDir, so at most one runs per machine.
type Reconciler struct {
	opts      Options
	resolver  Resolver
	lifecycle Lifecycle
	log       zerolog.Logger
}

// New creates a Reconciler.
func New(opts Options, resolver Resolver, lc Lifecycle) *Reconciler {
	if opts.Publish == nil {
		opts.Publish = event.Publish
	}
	return &Reconciler{
		opts:      opts,
		resolver:  resolver,
		lifecycle: lc,
		log:       logging.Component("reconcile"),
	}
}

// GlobalConfigPath is the path of global.ini.
func (r *Reconciler) GlobalConfigPath() string {
	return filepath.Join(r.opts.OBSDir, GlobalConfig)
}

// ScenesDir is the scene-collection directory.
func (r *Reconciler) ScenesDir() string {
	return filepath.Join(r.opts.OBSDir, "basic", "scenes")
}

// LauncherPath is the script path registered in scene collections.
func (r *Reconciler) LauncherPath() string {
	return r.opts.Companion.ScriptPath()
}

// ComputeDesiredInterpreterPath returns the interpreter directory global.ini
// should point at, with forward slashes.
func (r *Reconciler) ComputeDesiredInterpreterPath(ctx context.Context) (string, error) {
	res, err := r.resolver.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return res.Directory, nil
}

// ReconcileInterpreterSetting sets every interpreter key that differs from
// desired. Values are compared with separators normalized. It reports
// whether doc changed.
func (r *Reconciler) ReconcileInterpreterSetting(doc *inifile.Document, desired string) bool {
	return reconcileInterpreter(doc, desired)
}

func reconcileInterpreter(doc *inifile.Document, desired string) bool {
	desired = python.Normalize(desired)
	changed := false
	for _, key := range InterpreterKeys {
		current, ok := doc.Get(PythonSection, key)
		if ok && python.Normalize(current) == desired {
			continue
		}
		doc.Set(PythonSection, key, desired)
		changed = true
	}
	return changed
}

// ReconcileSceneRegistrations registers launcherPath in every scene
// collection in scenesDir and reports whether any document changed.
// Failing documents are skipped.
func (r *Reconciler) ReconcileSceneRegistrations(ctx context.Context, scenesDir, launcherPath string) (bool, error) {
	result, err := r.registerScenes(ctx, scenesDir, launcherPath)
	if err != nil {
		return false, err
	}
	return result.AnyChanged(), nil
}

func (r *Reconciler) registerScenes(ctx context.Context, scenesDir, launcherPath string) (*scene.Result, error) {
	opts := r.opts.Scenes
	opts.DryRun = r.opts.DryRun

	result, err := scene.RegisterAll(ctx, scenesDir, launcherPath, opts)
	if err != nil {
		return result, err
	}
	for _, o := range result.Outcomes {
		switch {
		case o.Err != nil:
			r.opts.Publish(event.Event{Type: event.SceneFailed, Data: event.SceneData{File: o.File, Error: o.Err.Error()}})
		case o.Changed && !opts.DryRun:
			r.opts.Publish(event.Event{Type: event.SceneRegistered, Data: event.SceneData{File: o.File}})
		}
	}
	return result, nil
}

// loadGlobalConfig reads global.ini. A missing file is an empty document.
func loadGlobalConfig(path string) (*inifile.Document, error) {
	doc, err := inifile.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return inifile.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return doc, nil
}
