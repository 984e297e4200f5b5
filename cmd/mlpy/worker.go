// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mlpy/internal/capability"
	"mlpy/internal/luaruntime"
	"mlpy/internal/sandbox"
)

// newExecuteWorkerCmd creates the hidden execute-worker subcommand:
// sandbox.Executor re-execs the mlpy binary itself as this subcommand
// (the binary's own os.Executable() path), so the sandboxed program
// runs in a fresh process sandbox.Executor applies rlimits and a
// process group to, never in the parent CLI's own process.
func newExecuteWorkerCmd() *cobra.Command {
	var capManifest string

	cmd := &cobra.Command{
		Use:    "execute-worker <emitted-lua-file>",
		Short:  "Execute a compiled Lua artifact under sandbox limits (internal)",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecuteWorker(cmd, args[0], capManifest)
		},
	}
	cmd.Flags().StringVar(&capManifest, "cap-manifest", "", "path to a YAML capability manifest granting this run's tokens")
	return cmd
}

func runExecuteWorker(cmd *cobra.Command, luaFile, capManifestPath string) error {
	// Apply this process's own rlimits before anything else runs, per
	// internal/sandbox/rlimit_linux.go's documented division of labor:
	// the parent communicates desired limits via env vars, the child
	// applies them to itself since os/exec has no pre-exec rlimit hook.
	if err := sandbox.SetOwnRlimits(); err != nil {
		return exitErrorf(137, "mlpy: apply resource limits: %w", err)
	}

	reg, err := buildRegistry()
	if err != nil {
		return exitErrorf(1, "%w", err)
	}

	grants := map[string][]capability.Token{}
	if capManifestPath != "" {
		data, err := os.ReadFile(capManifestPath)
		if err != nil {
			return exitErrorf(2, "mlpy: read capability manifest: %w", err)
		}
		grants, err = capability.LoadManifest(data)
		if err != nil {
			return exitErrorf(3, "mlpy: %w", err)
		}
	}

	capCtx := capability.NewContext()
	bridge := luaruntime.NewBridge(reg, capCtx)
	for name, tokens := range grants {
		bridge.GrantTokensFor(name, tokens...)
	}

	factory := luaruntime.NewStateFactory()
	ctx := context.Background()
	L, err := factory.NewState(ctx, bridge)
	if err != nil {
		return exitErrorf(1, "mlpy: initialize lua runtime: %w", err)
	}
	defer L.Close()

	luaruntime.RegisterStdlib(L, bridge)

	if err := L.DoFile(luaFile); err != nil {
		return exitErrorf(1, "mlpy: runtime error: %s", formatLuaError(err))
	}
	return nil
}

func formatLuaError(err error) string {
	return fmt.Sprintf("%v", err)
}
