// Command overhead polls public ADS-B feeds and raises a notification when
// an aircraft passes over the observer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unklstewy/overhead/internal/app"
	"github.com/unklstewy/overhead/internal/logging"
	"github.com/unklstewy/overhead/pkg/config"
)

var (
	// Version information (set by build flags)
	version = "dev"
	commit  = "unknown"

	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

const (
	// skipConfig marks commands that run without loading the config file
	skipConfig = "skip-config"

	// ownsScreen marks commands that route logs into their own UI
	ownsScreen = "owns-screen"
)

var rootCmd = &cobra.Command{
	Use:   "overhead",
	Short: "Notify when aircraft pass overhead",
	Long: `overhead polls a public ADS-B feed around your location and raises a
notification when a new aircraft enters the configured radius.

Notifications are throttled to one per minimum interval and a flight is
only announced once while it stays in range.`,
	Version:       fmt.Sprintf("%s (commit %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfig] == "true" {
			return nil
		}

		var err error
		cfg, err = config.Load(app.ConfigPath(configPath))
		if err != nil {
			return err
		}
		if cmd.Annotations[ownsScreen] == "true" {
			return nil
		}

		logger, err = logging.New(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: user config dir/overhead/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
