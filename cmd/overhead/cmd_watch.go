package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/overhead/internal/app"
	"github.com/unklstewy/overhead/internal/watcher"
	"github.com/unklstewy/overhead/pkg/config"
	"github.com/unklstewy/overhead/pkg/coordinates"
)

// watchCmd polls until interrupted
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll continuously and notify on new overhead flights",
	Long: `Polls the ADS-B feed every poll interval and delivers notifications to the
configured sinks (log, webhook). Edits to the config file are applied
without a restart.`,
	RunE: runWatch,
}

// checkCmd runs a single poll
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one poll and print what is overhead",
	Long: `Runs one poll and prints the flights within the radius. The previous poll
is kept in the cache, so repeated checks only notify flights that are new
since the last one.

Example:
  overhead check --at 51.47,-0.45 --radius 15`,
	RunE: runCheck,
}

var (
	checkJSON   bool
	checkAt     string
	checkRadius float64
)

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the result as JSON")
	checkCmd.Flags().StringVar(&checkAt, "at", "", "observer position as lat,lon (overrides config)")
	checkCmd.Flags().Float64Var(&checkRadius, "radius", 0, "radius in km (overrides config)")

	rootCmd.AddCommand(watchCmd, checkCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, _ := a.Location.Location(ctx)
	logger.Info("watching",
		zap.Float64("lat", loc.Latitude),
		zap.Float64("lon", loc.Longitude),
		zap.Float64("radius_km", a.Watcher.Radius()),
		zap.Duration("poll_interval", a.Watcher.PollInterval()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Watcher.Run(gctx) })
	g.Go(func() error { return a.RunRetention(gctx) })
	g.Go(func() error { return watchConfig(gctx, a) })
	return g.Wait()
}

// watchConfig applies config file edits to a until ctx ends. It returns
// at once when there is no file to watch.
func watchConfig(ctx context.Context, a *app.App) error {
	path := app.ConfigPath(configPath)
	if _, err := os.Stat(path); err != nil {
		a.Logger.Debug("config file not found, reload disabled", zap.String("path", path))
		return nil
	}
	return config.Watch(ctx, path, a.Logger.Named("config"), func(c *config.Config) {
		a.Logger.Info("config reloaded", zap.String("path", path))
		a.Reload(c)
	})
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	flags := cmd.Flags()
	if checkAt != "" {
		loc, err := parseLocation(checkAt)
		if err != nil {
			return err
		}
		cfg.Observer.Latitude = loc.Latitude
		cfg.Observer.Longitude = loc.Longitude
	}
	if flags.Changed("radius") {
		cfg.Detection.RadiusKm = checkRadius
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, logger, app.WithoutDatabase())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Watcher.Check(ctx)
	if checkJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil {
			return encErr
		}
		return err
	}
	if err != nil && res.CheckedAt.IsZero() {
		return err
	}
	printResult(cmd.OutOrStdout(), res)
	return err
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	newStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// printResult writes a human summary of one check.
func printResult(w io.Writer, res watcher.Result) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d aircraft within %.0f km", len(res.Overhead), res.RadiusKm)))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("at %.4f, %.4f  %s",
		res.Location.Latitude, res.Location.Longitude, res.CheckedAt.Format(time.RFC3339))))

	if len(res.Overhead) > 0 {
		fresh := make(map[string]bool, len(res.New))
		for _, s := range res.New {
			fresh[s.ID()] = true
		}

		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FLIGHT\tTYPE\tALT FT\tKM\tDIR\tELEV\t")
		for _, s := range res.Overhead {
			mark := ""
			if fresh[s.ID()] {
				mark = "new"
			}
			fmt.Fprintf(tw, "%s\t%s\t%.0f\t%.1f\t%s\t%.0f°\t%s\n",
				s.Aircraft.DisplayName(), s.Aircraft.TypeCode, s.Aircraft.Altitude,
				s.DistanceKm, s.Direction, s.Elevation, mark)
		}
		tw.Flush()
	}

	switch {
	case res.Notification != nil:
		fmt.Fprintln(w)
		fmt.Fprintln(w, newStyle.Render(res.Notification.Title))
		fmt.Fprintln(w, res.Notification.Body)
		if res.Notification.ImageURL != "" {
			fmt.Fprintln(w, dimStyle.Render(res.Notification.ImageURL))
		}
	case res.Throttled:
		fmt.Fprintln(w)
		fmt.Fprintln(w, warnStyle.Render("throttled, next notification in "+res.RetryIn.Round(time.Second).String()))
	}
	if len(res.Suppressed) > 0 {
		fmt.Fprintln(w, dimStyle.Render("already notified: "+strings.Join(res.Suppressed, ", ")))
	}
	if res.Error != "" {
		fmt.Fprintln(w, warnStyle.Render(res.Error))
	}
}

// parseLocation reads "lat,lon" into a position.
func parseLocation(s string) (coordinates.Geographic, error) {
	var loc coordinates.Geographic
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "%f,%f", &loc.Latitude, &loc.Longitude); err != nil {
		return loc, fmt.Errorf("invalid location %q, want lat,lon", s)
	}
	if !loc.Valid() {
		return loc, errors.New("location out of range")
	}
	return loc, nil
}
