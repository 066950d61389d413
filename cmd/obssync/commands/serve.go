package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/omuapps/obssync/internal/logging"
	"github.com/omuapps/obssync/internal/plugin"
	"github.com/omuapps/obssync/internal/server"
	"github.com/omuapps/obssync/internal/watch"
)

var (
	servePort  int
	serveYes   bool
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the plugin HTTP server",
	Long: `Run obssync as a plugin host: register the plugin permissions, start a
reconciliation pass in the background and serve status, reports and events
over HTTP.

Without --yes a running OBS is never closed; the interpreter setting then
waits for the next pass.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (defaults to the configured port)")
	serveCmd.Flags().BoolVarP(&serveYes, "yes", "y", false, "Close OBS without asking")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Register the launcher in new scene collections")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	log := logging.Component("serve")

	ctx, stop := signalContext()
	defer stop()

	r := a.reconciler(reconcilerOptions{dialog: pickDialog(serveYes, 3)})

	cfg := server.DefaultConfig()
	cfg.Port = a.cfg.Server.Port
	cfg.EnableCORS = a.cfg.Server.EnableCORS
	if servePort != 0 {
		cfg.Port = servePort
	}

	srv := server.New(cfg, server.Deps{
		Plugin:    plugin.New(r),
		Previewer: r,
		Reports:   a.reports,
		AppConfig: a.cfg,
	})

	var w *watch.Watcher
	if serveWatch {
		if w, err = startSceneWatcher(ctx, r, a.cfg.Scenes.Pattern); err != nil {
			log.Warn().Err(err).Msg("scene watcher disabled")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("server shutdown error")
	}
	if w != nil {
		_ = w.Stop()
	}
	return err
}
