// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package main

import (
	"github.com/spf13/cobra"

	"mlpy/internal/diagnostics"
	"mlpy/internal/pipeline"
)

// NewAuditCmd creates the audit subcommand: spec.md §6's `audit <file>`,
// parsing and running deep analysis only (no code generation, no cache
// interaction). Exits 0 if no critical issues were found.
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <file>",
		Short: "Parse and analyze an ML source file without compiling it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, args[0])
		},
	}
	return cmd
}

func runAudit(cmd *cobra.Command, file string) error {
	mcfg, err := loadConfig(cmd)
	if err != nil {
		return exitErrorf(3, "%w", err)
	}

	source, _, err := readSourceFile(file)
	if err != nil {
		return exitErrorf(2, "mlpy: read %q: %w", file, err)
	}

	reg, err := buildRegistry()
	if err != nil {
		return exitErrorf(1, "%w", err)
	}

	diags := pipeline.Diagnose(cmd.Context(), file, source, mcfg.CompilerVersion, reg)
	printDiagnostics(cmd, diags)

	for _, d := range diags {
		if d.Severity == diagnostics.SeverityCritical {
			return exitErrorf(1, "mlpy: %q has critical issues", file)
		}
	}
	return nil
}
