// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mlpy/internal/pipeline"
)

// transpileConfig holds flags for the transpile subcommand.
type transpileConfig struct {
	strict       bool
	force        bool
	noSourceMaps bool
	outDir       string
}

// NewTranspileCmd creates the transpile subcommand: spec.md §6's
// `transpile <file>`, emitting the compiled Lua artifact alongside (or
// under --out) the source file. Exit codes: 0 success, 1 compilation
// error, 2 I/O error, 3 usage error.
func NewTranspileCmd() *cobra.Command {
	cfg := &transpileConfig{}

	cmd := &cobra.Command{
		Use:   "transpile <file>",
		Short: "Compile an ML source file to Lua",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranspile(cmd, args[0], cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.strict, "strict", false, "treat warnings as compilation errors")
	cmd.Flags().BoolVar(&cfg.force, "force", false, "bypass the cache read (still writes through on success)")
	cmd.Flags().BoolVar(&cfg.noSourceMaps, "no-source-maps", false, "do not emit a .map sibling file")
	cmd.Flags().StringVar(&cfg.outDir, "out", "", "output directory (default: alongside the source file)")

	return cmd
}

func runTranspile(cmd *cobra.Command, file string, cfg *transpileConfig) error {
	mcfg, err := loadConfig(cmd)
	if err != nil {
		return exitErrorf(3, "%w", err)
	}
	if cfg.strict {
		mcfg.Strict = true
	}

	source, modTime, err := readSourceFile(file)
	if err != nil {
		return exitErrorf(2, "mlpy: read %q: %w", file, err)
	}

	reg, err := buildRegistry()
	if err != nil {
		return exitErrorf(1, "%w", err)
	}

	c, err := openCache(mcfg, nil)
	if err != nil {
		return exitErrorf(2, "%w", err)
	}

	sourceHash := pipeline.HashSource(source)
	artifact, err := c.GetOrCompile(cmd.Context(), file, source, sourceHash, modTime, cfg.force, reg)
	if err != nil {
		return exitErrorf(1, "%w", err)
	}

	if artifact.Diagnostics.HasCritical() {
		printDiagnostics(cmd, artifact.Diagnostics.Items())
		return exitErrorf(1, "mlpy: %q failed to compile", file)
	}
	if mcfg.Strict && !artifact.Diagnostics.Empty() {
		printDiagnostics(cmd, artifact.Diagnostics.Items())
		return exitErrorf(1, "mlpy: %q has warnings and --strict was set", file)
	}
	printDiagnostics(cmd, artifact.Diagnostics.Items())

	outDir := cfg.outDir
	if outDir == "" {
		outDir = filepath.Dir(file)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return exitErrorf(2, "mlpy: create %q: %w", outDir, err)
	}

	base := filepath.Base(file)
	luaPath := filepath.Join(outDir, base+".lua")
	if err := os.WriteFile(luaPath, []byte(artifact.EmittedSource), 0o644); err != nil {
		return exitErrorf(2, "mlpy: write %q: %w", luaPath, err)
	}

	if !cfg.noSourceMaps && artifact.SourceMap != nil {
		mapPath := filepath.Join(outDir, base+".lua.map")
		if err := os.WriteFile(mapPath, []byte(artifact.SourceMap.Serialize()), 0o644); err != nil {
			return exitErrorf(2, "mlpy: write %q: %w", mapPath, err)
		}
	}

	cmd.Println(fmt.Sprintf("wrote %s", luaPath))
	return nil
}
