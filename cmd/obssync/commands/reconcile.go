package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	reconcileDryRun     bool
	reconcileYes        bool
	reconcileNoRelaunch bool
	reconcileRetries    int
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Update OBS settings, launcher registration and scene collections",
	Long: `Point OBS's python interpreter setting at the companion installation,
write the launcher registration file and register the launcher script in
every scene collection.

If the interpreter setting has to change while OBS is running, OBS is asked
to close first (with confirmation) and started again afterwards.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "Show what would change without writing anything")
	reconcileCmd.Flags().BoolVarP(&reconcileYes, "yes", "y", false, "Close OBS without asking")
	reconcileCmd.Flags().BoolVar(&reconcileNoRelaunch, "no-relaunch", false, "Leave OBS closed afterwards")
	reconcileCmd.Flags().IntVar(&reconcileRetries, "retries", 3, "With --yes, how many exit windows to wait before giving up")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	opts := reconcilerOptions{
		dialog:  pickDialog(reconcileYes, reconcileRetries),
		dryRun:  reconcileDryRun,
		diffOut: os.Stdout,
	}
	if reconcileNoRelaunch {
		relaunch := false
		opts.relaunch = &relaunch
	}

	report, err := a.reconciler(opts).Run(ctx)
	if report != nil {
		printReport(os.Stdout, report)
	}
	return err
}
