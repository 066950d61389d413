package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/omuapps/obssync/internal/logging"
	"github.com/omuapps/obssync/internal/reconcile"
	"github.com/omuapps/obssync/internal/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Register the launcher in scene collections as OBS creates them",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before re-registering")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	// Scene registration never needs OBS to stop.
	r := a.reconciler(reconcilerOptions{dialog: pickDialog(false, 0)})
	w, err := startSceneWatcher(ctx, r, a.cfg.Scenes.Pattern)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "watching %s\n", w.Dir())

	<-ctx.Done()
	return w.Stop()
}

func startSceneWatcher(ctx context.Context, r *reconcile.Reconciler, pattern string) (*watch.Watcher, error) {
	log := logging.Component("watch")
	handle := func(ctx context.Context, files []string) {
		changed, err := r.SyncScenes(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("scene registration failed")
			return
		}
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = filepath.Base(f)
		}
		log.Info().Strs("files", names).Bool("changed", changed).Msg("scene collections checked")
		if changed {
			fmt.Fprintf(os.Stdout, "%s %v\n", changeStyle.Render("launcher registered"), names)
		}
	}

	w, err := watch.New(r.ScenesDir(), handle, watch.Options{Pattern: pattern, Debounce: watchDebounce})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", r.ScenesDir(), err)
	}
	w.Start(ctx)
	return w, nil
}
