package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unklstewy/overhead/pkg/cache"
)

// cacheCmd inspects the on-disk cache
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the cache",
	Long: `The cache holds the previous poll and resolved aircraft images.

Available subcommands:
  stats  - entry count and the registered keys
  prune  - remove expired entries
  clear  - remove everything`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and keys",
	RunE: withCache(func(cmd *cobra.Command, c *cache.Cache) error {
		size, err := c.Size(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d live entries", size)))
		fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%s backend in %s", cfg.Cache.Backend, cacheDir())))

		keys := c.Keys()
		if len(keys) == 0 {
			return nil
		}
		fmt.Fprintln(out)
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
		return nil
	}),
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired entries",
	RunE: withCache(func(cmd *cobra.Command, c *cache.Cache) error {
		n, err := c.Prune(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", n)
		return nil
	}),
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry",
	RunE: withCache(func(cmd *cobra.Command, c *cache.Cache) error {
		if err := c.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
		return nil
	}),
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func cacheDir() string {
	if cfg.Cache.Dir != "" {
		return cfg.Cache.Dir
	}
	return cache.DefaultDir()
}

// withCache opens the configured cache around fn.
func withCache(fn func(cmd *cobra.Command, c *cache.Cache) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		cmd.SetContext(ctx)

		c, err := cache.Open(ctx, cfg.Cache.Backend, cacheDir(),
			cache.WithDefaultTTL(time.Duration(cfg.Cache.DefaultTTLMinutes)*time.Minute),
			cache.WithLogger(logger.Named("cache")))
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(cmd, c)
	}
}
