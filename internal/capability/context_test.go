// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package capability_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlpy/internal/capability"
	"mlpy/internal/diagnostics"
)

func mustToken(t *testing.T, pattern string, actions ...capability.Action) capability.Token {
	t.Helper()
	tok, err := capability.NewToken(pattern, actions, nil, "test", "n1")
	require.NoError(t, err)
	return tok
}

func TestContext_SingleSegmentGlob(t *testing.T) {
	ctx := capability.NewContext()
	ctx.Push("fs", mustToken(t, "filesystem.read.*", "read"))

	assert.True(t, ctx.Check("filesystem.read.config", "read"))
	assert.False(t, ctx.Check("filesystem.read.config.nested", "read"), "* must not cross segment boundaries")
}

func TestContext_DoubleStarCrossesSegments(t *testing.T) {
	ctx := capability.NewContext()
	ctx.Push("fs", mustToken(t, "filesystem.read.**", "read"))

	assert.True(t, ctx.Check("filesystem.read.config.nested.deep", "read"))
}

func TestContext_WrongActionDenied(t *testing.T) {
	ctx := capability.NewContext()
	ctx.Push("fs", mustToken(t, "filesystem.**", "read"))

	assert.False(t, ctx.Check("filesystem.config", "write"))
}

func TestContext_NestedAdditive(t *testing.T) {
	ctx := capability.NewContext()
	ctx.Push("outer", mustToken(t, "network.**", "connect"))
	ctx.Push("inner", mustToken(t, "filesystem.**", "read"))

	assert.True(t, ctx.Check("network.example.com", "connect"), "inner frame must still see outer's tokens")
	assert.True(t, ctx.Check("filesystem.tmp", "read"))
}

func TestContext_PopDropsOnlyInnerFrameTokens(t *testing.T) {
	ctx := capability.NewContext()
	ctx.Push("outer", mustToken(t, "network.**", "connect"))
	ctx.Push("inner", mustToken(t, "filesystem.**", "read"))

	require.NoError(t, ctx.Pop())

	assert.False(t, ctx.Check("filesystem.tmp", "read"), "inner token must be gone after pop")
	assert.True(t, ctx.Check("network.example.com", "connect"), "outer token must survive pop")
}

func TestContext_PopUnderflowIsError(t *testing.T) {
	ctx := capability.NewContext()
	err := ctx.Pop()
	assert.Error(t, err)
}

func TestContext_ExpiredTokenDenied(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	tok, err := capability.NewToken("resource.**", []capability.Action{"read"}, &past, "test", "n1")
	require.NoError(t, err)

	ctx := capability.NewContext()
	ctx.Push("f", tok)
	assert.False(t, ctx.Check("resource.x", "read"))
}

func TestContext_RequireReturnsCapabilityDeniedDiagnostic(t *testing.T) {
	ctx := capability.NewContext()
	err := ctx.Require("network.example.com", "connect")
	require.Error(t, err)
	diag, ok := err.(diagnostics.Diagnostic)
	require.True(t, ok)
	assert.Equal(t, diagnostics.KindCapabilityDenied, diag.Kind)
}

func TestContext_DepthTracksPushPop(t *testing.T) {
	ctx := capability.NewContext()
	assert.Equal(t, 0, ctx.Depth())
	ctx.Push("a")
	ctx.Push("b")
	assert.Equal(t, 2, ctx.Depth())
	require.NoError(t, ctx.Pop())
	assert.Equal(t, 1, ctx.Depth())
}
