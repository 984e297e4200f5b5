// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	output := buf.String()
	for _, sub := range []string{"transpile", "run", "audit", "cache"} {
		if !strings.Contains(output, sub) {
			t.Errorf("help output missing %q command", sub)
		}
	}
	if strings.Contains(output, "execute-worker") {
		t.Errorf("hidden execute-worker subcommand should not appear in help output")
	}
}

func TestTranspileCommand_RequiresExactlyOneArg(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"transpile"})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error when transpile is given no file argument")
	}
}

func TestCacheCommand_HasThreeSubcommands(t *testing.T) {
	cmd := NewCacheCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"clear", "stats", "prune"} {
		if !names[want] {
			t.Errorf("cache command missing subcommand %q", want)
		}
	}
}
