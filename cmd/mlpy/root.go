// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flag available to every subcommand, mirroring the teacher's
// single shared --config persistent flag.
var configFile string

// NewRootCmd creates the root command for the mlpy CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mlpy",
		Short: "mlpy - a capability-secure ML-to-Lua compiler",
		Long: `mlpy compiles ML, a small JavaScript-like scripting language, to Lua
and executes the result in a sandboxed subprocess under capability-based
security and resource limits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: built-in defaults + MLPY_* env)")

	cmd.AddCommand(NewTranspileCmd())
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewAuditCmd())
	cmd.AddCommand(NewCacheCmd())
	cmd.AddCommand(newExecuteWorkerCmd())

	return cmd
}
