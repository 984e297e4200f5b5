// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mlpy/internal/pipeline"
	"mlpy/internal/registry"
)

func sealedRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterDefaultBuiltins())
	reg.Seal()
	return reg
}

func TestCompile_HelloWorldSucceeds(t *testing.T) {
	reg := sealedRegistry(t)
	res := pipeline.Compile(context.Background(), "hello.ml", `print("hello world");`, "0.1.0", reg)
	require.Equal(t, pipeline.StateGenerated, res.State)
	require.NotNil(t, res.Artifact)
	require.Contains(t, res.Artifact.EmittedSource, "safe_call(\"print\"")
	require.False(t, res.Artifact.Diagnostics.HasCritical())
}

func TestCompile_BlanketDunderRejected(t *testing.T) {
	reg := sealedRegistry(t)
	res := pipeline.Compile(context.Background(), "bad.ml", `__proto__ = 1;`, "0.1.0", reg)
	require.Equal(t, pipeline.StateFailed, res.State)
	require.True(t, res.Artifact.Diagnostics.HasCritical())
}

func TestCompile_FailFastIntConversion(t *testing.T) {
	reg := sealedRegistry(t)
	res := pipeline.Compile(context.Background(), "conv.ml", `x = int("oops");`, "0.1.0", reg)
	require.Equal(t, pipeline.StateGenerated, res.State)
	require.Contains(t, res.Artifact.EmittedSource, "mlpy_int(")
}

func TestCompile_SyntaxErrorNeverReturnsBothEmpty(t *testing.T) {
	reg := sealedRegistry(t)
	res := pipeline.Compile(context.Background(), "broken.ml", `x = ;`, "0.1.0", reg)
	require.Equal(t, pipeline.StateFailed, res.State)
	require.False(t, res.Artifact.Diagnostics.Empty())
}

func TestCompileIncremental_SameSourceReturnsCachedResult(t *testing.T) {
	reg := sealedRegistry(t)
	prev := pipeline.IncrementalContext{}
	first := pipeline.Compile(context.Background(), "a.ml", `print("x");`, "0.1.0", reg)
	prev.LastSource = `print("x");`
	prev.LastResult = first

	second := pipeline.CompileIncremental(context.Background(), prev, "a.ml", `print("x");`, "0.1.0", reg)
	require.Same(t, first.Artifact, second.Artifact)
}

func TestResolve_MapsEmittedPositionBackToSource(t *testing.T) {
	reg := sealedRegistry(t)
	res := pipeline.Compile(context.Background(), "r.ml", "print(\"hi\");\n", "0.1.0", reg)
	require.Equal(t, pipeline.StateGenerated, res.State)

	_, ok := pipeline.Resolve(res, 1, 0)
	require.True(t, ok)
}
