// Package commands provides the CLI commands for obssync.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	workDir   string
)

var rootCmd = &cobra.Command{
	Use:   "obssync",
	Short: "Keep OBS Studio wired to the companion server",
	Long: `obssync points OBS Studio's python interpreter setting at the companion
installation, writes the companion launcher registration and registers the
launcher script in every scene collection.

Run 'obssync reconcile' to apply, or 'obssync status' to see what would change.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR); defaults to the configured level")
	rootCmd.PersistentFlags().StringVar(&workDir, "directory", "", "Directory to load obssync.json and .env from")

	rootCmd.SetVersionTemplate(fmt.Sprintf("obssync %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(relaunchCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
