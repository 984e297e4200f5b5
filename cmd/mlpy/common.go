// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mlpy/internal/cache"
	"mlpy/internal/config"
	"mlpy/internal/diagnostics"
	"mlpy/internal/observability"
	"mlpy/internal/registry"
)

// loadConfig resolves a Config for the invoking command, layering
// defaults, --config file, MLPY_* environment, and the command's own
// flags, per internal/config.Load's documented priority order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return config.Config{}, fmt.Errorf("mlpy: load config: %w", err)
	}
	return cfg, nil
}

// buildRegistry constructs the sealed Safe-Attribute Registry and
// Function Whitelist every compile and run shares: registration happens
// once here, then the registry is read-only for the rest of the process.
func buildRegistry() (*registry.Registry, error) {
	reg := registry.New()
	if err := reg.RegisterDefaultBuiltins(); err != nil {
		return nil, fmt.Errorf("mlpy: register builtins: %w", err)
	}
	reg.Seal()
	return reg, nil
}

// openCache constructs the two-tier compile cache rooted at cfg.CacheDir,
// wired to the shared observability metrics so cache lookups show up on
// /metrics regardless of which subcommand triggered them.
func openCache(cfg config.Config, metrics *observability.Metrics) (*cache.Cache, error) {
	var m cache.Metrics = cache.NoopMetrics{}
	if metrics != nil {
		m = metrics
	}
	c, err := cache.New(cfg.CacheDir, cfg.CompilerVersion, defaultLRULimit, m)
	if err != nil {
		return nil, fmt.Errorf("mlpy: open cache at %q: %w", cfg.CacheDir, err)
	}
	return c, nil
}

// defaultLRULimit bounds the in-process cache tier; the filesystem tier
// is unbounded apart from explicit `cache prune`.
const defaultLRULimit = 256

// readSourceFile reads file and its modification time together, the pair
// internal/cache needs to judge staleness.
func readSourceFile(file string) (string, time.Time, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", time.Time{}, err
	}
	info, err := os.Stat(file)
	if err != nil {
		return "", time.Time{}, err
	}
	return string(data), info.ModTime(), nil
}

// printDiagnostics writes one line per diagnostic to cmd's error stream,
// in the file:line:col: severity: message form the teacher's compiler
// front ends use for tool-readable output.
func printDiagnostics(cmd *cobra.Command, diags []diagnostics.Diagnostic) {
	for _, d := range diags {
		cmd.PrintErrln(formatDiagnostic(d))
	}
}

func formatDiagnostic(d diagnostics.Diagnostic) string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
}
