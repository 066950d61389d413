package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omuapps/obssync/internal/config"
	"github.com/omuapps/obssync/internal/dialog"
	"github.com/omuapps/obssync/internal/launcher"
	"github.com/omuapps/obssync/internal/lifecycle"
	"github.com/omuapps/obssync/internal/logging"
	"github.com/omuapps/obssync/internal/process"
	"github.com/omuapps/obssync/internal/python"
	"github.com/omuapps/obssync/internal/reconcile"
	"github.com/omuapps/obssync/internal/scene"
	"github.com/omuapps/obssync/internal/storage"
	"github.com/omuapps/obssync/pkg/types"
)

// app holds what every command loads first.
type app struct {
	workDir string
	cfg     *types.Config
	paths   *config.Paths
	reports *reconcile.Reports
	locator *process.SystemLocator
}

func loadApp() (*app, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	initLogging(cfg, paths)

	return &app{
		workDir: dir,
		cfg:     cfg,
		paths:   paths,
		reports: reconcile.NewReports(storage.New(paths.StoragePath()), reconcile.DefaultKeepReports),
		locator: process.NewLocator(),
	}, nil
}

// initLogging writes logs to a file in the state directory, and to stderr
// with --print-logs.
func initLogging(cfg *types.Config, paths *config.Paths) {
	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(level)
	logCfg.Output = io.Discard
	logCfg.LogToFile = true
	logCfg.LogDir = paths.LogDir()
	if printLogs {
		logCfg.Output = os.Stderr
		logCfg.Pretty = true
	}
	logging.Init(logCfg)
}

// pickDialog chooses how stop confirmations are answered: yes answers
// them all, a terminal asks, anything else declines.
func pickDialog(yes bool, retries int) lifecycle.Dialog {
	if yes {
		return dialog.AutoConfirm(retries, os.Stdout)
	}
	if dialog.Interactive() {
		return dialog.NewTerminal(os.Stdin, os.Stdout)
	}
	return dialog.AutoDecline(os.Stdout)
}

type reconcilerOptions struct {
	dialog   lifecycle.Dialog
	dryRun   bool
	relaunch *bool
	diffOut  io.Writer
}

func (a *app) companion() launcher.Companion {
	c := a.cfg.Companion
	return launcher.Companion{
		ScriptDir:        c.ScriptDir,
		Script:           c.Launcher,
		Python:           a.cfg.Python.Executable,
		Module:           c.Module,
		Args:             c.Args,
		WorkingDirectory: c.WorkingDirectory,
	}
}

func (a *app) reconciler(opts reconcilerOptions) *reconcile.Reconciler {
	lc := a.cfg.Lifecycle
	coordinator := lifecycle.New(lifecycle.Config{
		Locator:      a.locator,
		Stopper:      process.DefaultStopper(),
		Dialog:       opts.dialog,
		PollInterval: time.Duration(lc.PollIntervalMs) * time.Millisecond,
		ExitWindow:   time.Duration(lc.ExitWindowMs) * time.Millisecond,
	})

	relaunch := *lc.Relaunch
	if opts.relaunch != nil {
		relaunch = *opts.relaunch
	}

	resolver := &python.Resolver{
		Executable: a.cfg.Python.Executable,
		Directory:  a.cfg.Python.Directory,
	}

	return reconcile.New(reconcile.Options{
		OBSDir:       a.cfg.OBSDir,
		ProcessNames: a.cfg.ProcessNames,
		Companion:    a.companion(),
		Scenes: scene.Options{
			Pattern: a.cfg.Scenes.Pattern,
			Matcher: scene.Matcher(*a.cfg.Scenes.NormalizePaths),
		},
		Relaunch: relaunch,
		DryRun:   opts.dryRun,
		StateDir: a.paths.State,
		Reports:  a.reports,
		DiffOut:  opts.diffOut,
	}, resolver, coordinator)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
