package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/node-updater/internal/config"
	"github.com/oshokin/node-updater/internal/logger"
	"github.com/oshokin/node-updater/internal/service/updater"
	"github.com/oshokin/node-updater/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel overrides the default logging level.
	logLevel string
	// includePrerelease allows installing pre-release tags for this run.
	includePrerelease bool
	// skipBackup disables the data snapshot for this run.
	skipBackup bool

	// rootCmd represents the base command performing one update-and-verify run.
	rootCmd = &cobra.Command{
		Use:   "node-updater",
		Short: "Detect, install, and verify new releases of the managed node.",
		Long: `Single-shot auto-updater for a systemd-managed node binary.

Each invocation queries the upstream repository for the latest release,
compares it against the recorded install state, and when a newer release
exists: optionally snapshots the data directory, downloads the binary,
stops the service, swaps the binary in place, restarts the service, and
watches its logs until traffic flows again or the health window expires.

The run exits zero when nothing had to be done or the update verified
cleanly, and non-zero on any aborted run so a wrapping scheduler can tell
failure from no-op. Re-running after a failure is safe: state only advances
once a swap and restart completed, and partial downloads are resumed.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}

			options := &updater.Options{
				ConfigPath:        configPath,
				IncludePrerelease: includePrerelease,
				SkipBackup:        skipBackup,
			}

			return updater.Run(ctx, options)
		},
	}
)

// Execute runs the node-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "logging level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&includePrerelease, "include-prerelease", false, "allow installing pre-release tags")
	rootCmd.Flags().BoolVar(&skipBackup, "skip-backup", false, "skip the data directory snapshot")
}
