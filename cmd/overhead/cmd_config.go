package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unklstewy/overhead/internal/app"
	"github.com/unklstewy/overhead/pkg/config"
)

// configCmd manages the config file
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and inspect the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Writes the default configuration to --config (or the per-user default
path). YAML is used unless the path ends in .json.

Example:
  overhead config init --at 40.64,-73.78`,
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config (file, defaults and environment)",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cfg.Marshal(!configShowJSON)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Print the config file path in use",
	Annotations: map[string]string{skipConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), app.ConfigPath(configPath))
	},
}

var (
	configInitForce bool
	configInitAt    string
	configShowJSON  bool
)

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")
	configInitCmd.Flags().StringVar(&configInitAt, "at", "", "observer position as lat,lon")
	configShowCmd.Flags().BoolVar(&configShowJSON, "json", false, "print JSON instead of YAML")

	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := app.ConfigPath(configPath)
	if ext := strings.ToLower(filepath.Ext(path)); ext == "" {
		path += ".yaml"
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	c := config.DefaultConfig()
	if configInitAt != "" {
		loc, err := parseLocation(configInitAt)
		if err != nil {
			return err
		}
		c.Observer.Latitude = loc.Latitude
		c.Observer.Longitude = loc.Longitude
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.Save(path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
