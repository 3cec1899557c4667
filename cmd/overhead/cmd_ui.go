package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/overhead/internal/app"
	"github.com/unklstewy/overhead/internal/console"
	"github.com/unklstewy/overhead/internal/logging"
	"github.com/unklstewy/overhead/internal/tui"
)

// tuiCmd shows the radar view
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Full-screen radar of the flights overhead",
	Long: `Shows a radar centered on the observer with the flights inside the radius,
projected forward between polls, and the last notification.

Keys:
  ↑/↓      select a flight
  c        check now
  +/-, 0   zoom, reset
  q        quit`,
	Annotations: map[string]string{ownsScreen: "true"},
	RunE:        runTUI,
}

// consoleCmd shows the operator console
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Multi-panel console with flights, notifications, cache and logs",
	Long: `Runs the watcher and shows its state across panels: the flights overhead,
notification history, the cache inspector and the live log.

Keys:
  ↑/↓, j/k select a flight
  c        check now
  x        clear the cache
  r        reset the notified set
  q        quit`,
	Annotations: map[string]string{ownsScreen: "true"},
	RunE:        runConsole,
}

func init() {
	rootCmd.AddCommand(tuiCmd, consoleCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logs := tui.NewLogBuffer(200)
	lg, err := logging.NewWriter(cfg.Logging, logs)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer a.Close()

	// The TUI schedules its own checks
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, a.Watcher, logs)
	})
	g.Go(func() error { return a.RunRetention(gctx) })
	g.Go(func() error { return watchConfig(gctx, a) })
	return g.Wait()
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	logs := console.NewLogManager(500)
	lg, err := logging.NewWriter(cfg.Logging, logs)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer a.Close()

	c := console.New(console.Config{
		Pipeline: a.Watcher,
		Cache:    a.Cache,
		Throttle: a.Throttle,
		History:  a.History,
		Logs:     logs,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return c.Run(gctx)
	})
	g.Go(func() error { return a.Watcher.Run(gctx) })
	g.Go(func() error { return a.RunRetention(gctx) })
	g.Go(func() error { return watchConfig(gctx, a) })
	return g.Wait()
}
