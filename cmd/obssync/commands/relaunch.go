package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omuapps/obssync/internal/process"
)

var relaunchCmd = &cobra.Command{
	Use:   "relaunch",
	Short: "Start OBS with the command line captured by the last run",
	RunE:  runRelaunch,
}

func runRelaunch(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	last, err := a.reports.Last(ctx)
	if err != nil {
		return err
	}
	if last.Lifecycle == nil || last.Lifecycle.Launch.Empty() {
		return fmt.Errorf("run %s did not capture an OBS command line", last.ID)
	}

	if h, err := a.locator.FindByNames(ctx, a.cfg.ProcessNames); err == nil {
		return fmt.Errorf("%s is already running (pid %d)", h.Name(), h.PID())
	} else if !errors.Is(err, process.ErrNotFound) {
		return err
	}

	spec := last.Lifecycle.Launch
	pid, err := process.Launch(spec)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "started %s (pid %d)\n", process.FormatCommand(spec.Command), pid)
	return nil
}
