package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/overhead/internal/app"
	"github.com/unklstewy/overhead/internal/server"
)

// serveCmd runs the watcher behind the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll continuously and serve the status API",
	Long: `Runs the watcher and serves:

  /api/*     status, overhead flights (JSON and GeoJSON), location updates,
             cache, history
  /ws        notifications pushed over WebSocket
  /metrics   Prometheus metrics

A phone or browser can POST its position to /api/location to move the
observer.`,
	RunE: runServe,
}

var servePort string

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if servePort != "" {
		cfg.Server.Port = servePort
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return a.Watcher.Run(gctx) })
	g.Go(func() error { return a.RunRetention(gctx) })
	g.Go(func() error { return watchConfig(gctx, a) })
	return g.Wait()
}
