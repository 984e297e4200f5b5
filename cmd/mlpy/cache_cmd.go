// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache subcommand group: spec.md §6's
// `cache {clear|stats|prune}`.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or manage the compile cache",
	}
	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCachePruneCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry, in-process and on disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mcfg, err := loadConfig(cmd)
			if err != nil {
				return exitErrorf(3, "%w", err)
			}
			c, err := openCache(mcfg, nil)
			if err != nil {
				return exitErrorf(2, "%w", err)
			}
			if err := c.Clear(); err != nil {
				return exitErrorf(2, "mlpy: clear cache: %w", err)
			}
			cmd.Println("cache cleared")
			return nil
		},
	}
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report the size of each cache tier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mcfg, err := loadConfig(cmd)
			if err != nil {
				return exitErrorf(3, "%w", err)
			}
			c, err := openCache(mcfg, nil)
			if err != nil {
				return exitErrorf(2, "%w", err)
			}
			stats := c.Stats()
			cmd.Println(fmt.Sprintf("lru entries:  %d", stats.LRUEntries))
			cmd.Println(fmt.Sprintf("disk entries: %d", stats.DiskEntries))
			return nil
		},
	}
}

func newCachePruneCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove disk cache entries older than --max-age",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mcfg, err := loadConfig(cmd)
			if err != nil {
				return exitErrorf(3, "%w", err)
			}
			c, err := openCache(mcfg, nil)
			if err != nil {
				return exitErrorf(2, "%w", err)
			}
			removed, err := c.Prune(maxAge)
			if err != nil {
				return exitErrorf(2, "mlpy: prune cache: %w", err)
			}
			cmd.Println(fmt.Sprintf("removed %d stale entries", removed))
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 7*24*time.Hour, "remove disk entries older than this duration")
	return cmd
}
