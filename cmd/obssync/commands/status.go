package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/omuapps/obssync/internal/process"
	"github.com/omuapps/obssync/internal/python"
	"github.com/omuapps/obssync/internal/reconcile"
	"github.com/omuapps/obssync/internal/scene"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current state without changing anything",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := os.Stdout
	r := a.reconciler(reconcilerOptions{dialog: pickDialog(false, 0), dryRun: true})

	fmt.Fprintln(out, headingStyle.Render("OBS"))
	fmt.Fprintf(out, "  config dir   %s\n", a.cfg.OBSDir)
	if h, err := a.locator.FindByNames(ctx, a.cfg.ProcessNames); err == nil {
		fmt.Fprintf(out, "  process      %s (pid %d)\n", h.Name(), h.PID())
	} else if errors.Is(err, process.ErrNotFound) {
		fmt.Fprintf(out, "  process      %s\n", dimStyle.Render("not running"))
		if near, _ := a.locator.Suggest(ctx, a.cfg.ProcessNames); near != "" {
			fmt.Fprintf(out, "               %s\n", changeStyle.Render(fmt.Sprintf("a process named %q is running; set processNames if that is OBS", near)))
		}
	} else {
		fmt.Fprintf(out, "  process      %s\n", errorStyle.Render(err.Error()))
	}

	fmt.Fprintln(out, headingStyle.Render("Interpreter"))
	desired, err := r.ComputeDesiredInterpreterPath(ctx)
	if err != nil {
		fmt.Fprintf(out, "  desired      %s\n", errorStyle.Render(err.Error()))
	} else {
		fmt.Fprintf(out, "  desired      %s\n", desired)
	}
	current, err := r.CurrentInterpreter()
	if err != nil {
		fmt.Fprintf(out, "  %s  %s\n", reconcile.GlobalConfig, errorStyle.Render(err.Error()))
	}
	for _, key := range reconcile.InterpreterKeys {
		value, ok := current[key]
		switch {
		case !ok:
			fmt.Fprintf(out, "  %-12s %s\n", key, dimStyle.Render("unset"))
		case desired != "" && python.Normalize(value) == python.Normalize(desired):
			fmt.Fprintf(out, "  %-12s %s\n", key, okStyle.Render(value))
		default:
			fmt.Fprintf(out, "  %-12s %s\n", key, changeStyle.Render(value))
		}
	}

	fmt.Fprintln(out, headingStyle.Render("Scene collections"))
	opts := scene.Options{Pattern: a.cfg.Scenes.Pattern, Matcher: scene.Matcher(*a.cfg.Scenes.NormalizePaths)}
	outcomes, err := scene.Inspect(r.ScenesDir(), r.LauncherPath(), opts)
	if err != nil {
		fmt.Fprintf(out, "  %s\n", errorStyle.Render(err.Error()))
	}
	for _, o := range outcomes {
		name := filepath.Base(o.File)
		switch {
		case o.Err != nil:
			fmt.Fprintf(out, "  %s %s\n", errorStyle.Render("error     "), name+": "+o.Err.Error())
		case o.Registered:
			fmt.Fprintf(out, "  %s %s\n", okStyle.Render("registered"), name)
		default:
			fmt.Fprintf(out, "  %s %s\n", changeStyle.Render("missing   "), name)
		}
	}

	fmt.Fprintln(out, headingStyle.Render("Last run"))
	last, err := a.reports.Last(ctx)
	switch {
	case errors.Is(err, reconcile.ErrNoReport):
		fmt.Fprintf(out, "  %s\n", dimStyle.Render("none"))
	case err != nil:
		fmt.Fprintf(out, "  %s\n", errorStyle.Render(err.Error()))
	default:
		printReport(out, last)
	}
	return nil
}
