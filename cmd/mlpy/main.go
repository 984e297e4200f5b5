// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package main is the entry point for the mlpy compiler CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	os.Exit(runMain())
}

// runMain runs the root command and maps its outcome to a process exit
// code. A plain error (I/O, config, usage) exits 1; commands that need a
// more specific code (transpile's 0/1/2/3, run's child exit code) set it
// themselves via exitCoder and bypass this default.
func runMain() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		if coder, ok := err.(exitCoder); ok {
			return coder.ExitCode()
		}
		slog.Error("mlpy: command failed", "error", err)
		return 1
	}
	return 0
}

// exitCoder lets a subcommand's RunE carry a specific process exit code
// through cobra's plain error return, instead of every non-success path
// collapsing to the generic code 1.
type exitCoder interface {
	error
	ExitCode() int
}

// cmdError is the exitCoder implementation subcommands return.
type cmdError struct {
	code int
	err  error
}

func (e *cmdError) Error() string { return e.err.Error() }
func (e *cmdError) ExitCode() int { return e.code }
func (e *cmdError) Unwrap() error { return e.err }

func exitErrorf(code int, format string, args ...any) error {
	return &cmdError{code: code, err: fmt.Errorf(format, args...)}
}
