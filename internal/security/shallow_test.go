// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package security_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlpy/internal/diagnostics"
	"mlpy/internal/lang"
	"mlpy/internal/security"
)

func parse(t *testing.T, src string) *lang.Program {
	t.Helper()
	prog, diags := lang.Parse("s.ml", src)
	require.Empty(t, diags)
	return prog
}

func TestAnalyzeShallow_CleanProgram(t *testing.T) {
	prog := parse(t, `fn add(a, b) { return a + b; }`)
	diags := security.AnalyzeShallow("s.ml", prog)
	assert.Empty(t, diags)
}

func TestAnalyzeShallow_DunderIdentifierRejected(t *testing.T) {
	prog := parse(t, `x = __secret;`)
	diags := security.AnalyzeShallow("s.ml", prog)
	require.Len(t, diags, 1)
	assert.Equal(t, diagnostics.KindDangerousIdentifier, diags[0].Kind)
}

func TestAnalyzeShallow_DunderParamNameRejected(t *testing.T) {
	prog := parse(t, `fn f(__x) { return __x; }`)
	diags := security.AnalyzeShallow("s.ml", prog)
	// one hit for the parameter, one for the read inside the body
	assert.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, diagnostics.KindDangerousIdentifier, d.Kind)
	}
}

func TestAnalyzeShallow_DunderMemberAccessRejected(t *testing.T) {
	prog := parse(t, `x = obj.__internal;`)
	diags := security.AnalyzeShallow("s.ml", prog)
	require.Len(t, diags, 1)
	assert.Equal(t, diagnostics.KindDangerousIdentifier, diags[0].Kind)
}

func TestAnalyzeShallow_ForbiddenNameRejected(t *testing.T) {
	prog := parse(t, `x = eval("1+1");`)
	diags := security.AnalyzeShallow("s.ml", prog)
	require.Len(t, diags, 1)
	assert.Equal(t, diagnostics.KindForbiddenName, diags[0].Kind)
}

// TestAnalyzeShallow_StringLiteralDunderGapIsKnown documents the
// compile-time gap spec.md §4.3 requires: a dunder spelled inside a
// string literal is NOT caught here. This is expected behavior, not a
// bug — the runtime attribute shield closes this gap one layer down.
func TestAnalyzeShallow_StringLiteralDunderGapIsKnown(t *testing.T) {
	prog := parse(t, `x = getattr(obj, "__class__");`)
	diags := security.AnalyzeShallow("s.ml", prog)
	assert.Empty(t, diags, "string-literal dunders are a documented compile-time gap")
}
