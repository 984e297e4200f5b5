// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestTranspileCommand_WritesLuaSibling(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello.ml")
	if err := os.WriteFile(src, []byte(`print("hi");`), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	t.Setenv("MLPY_CACHE_DIR", filepath.Join(dir, "cache"))

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"transpile", src})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("transpile failed: %v", err)
	}

	out := filepath.Join(dir, "hello.ml.lua")
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("expected %s to exist: %v", out, err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty emitted Lua source")
	}
}

func TestAuditCommand_ExitsCleanOnSafeProgram(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello.ml")
	if err := os.WriteFile(src, []byte(`print("hi");`), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	t.Setenv("MLPY_CACHE_DIR", filepath.Join(dir, "cache"))

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"audit", src})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
}
