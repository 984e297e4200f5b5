// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlpy/internal/codegen"
	"mlpy/internal/lang"
)

func parse(t *testing.T, src string) *lang.Program {
	t.Helper()
	prog, diags := lang.Parse("s.ml", src)
	require.Empty(t, diags)
	return prog
}

func TestGenerate_PlainCallWrappedInSafeCall(t *testing.T) {
	prog := parse(t, `greet("world");`)
	out, _, diags := codegen.Generate("s.ml", prog)
	require.Empty(t, diags)
	assert.Contains(t, out, `safe_call("greet", "world")`)
}

func TestGenerate_MemberReadWrappedInSafeAttrAccess(t *testing.T) {
	prog := parse(t, `x = obj.field;`)
	out, _, diags := codegen.Generate("s.ml", prog)
	require.Empty(t, diags)
	assert.Contains(t, out, `safe_attr_access(ml_obj, "field")`)
}

func TestGenerate_MethodCallWrappedInSafeMethodCall(t *testing.T) {
	prog := parse(t, `obj.doThing(1);`)
	out, _, diags := codegen.Generate("s.ml", prog)
	require.Empty(t, diags)
	assert.Contains(t, out, `safe_method_call(ml_obj, "doThing", 1)`)
}

func TestGenerate_AttrAssignmentWrappedInSafeAttrSet(t *testing.T) {
	prog := parse(t, `obj.field = 1;`)
	out, _, diags := codegen.Generate("s.ml", prog)
	require.Empty(t, diags)
	assert.Contains(t, out, `safe_attr_set(ml_obj, "field", 1)`)
}

func TestGenerate_CapabilityBlockBalancedPushPop(t *testing.T) {
	prog := parse(t, `capability net { fetch("x"); }`)
	out, _, diags := codegen.Generate("s.ml", prog)
	require.Empty(t, diags)
	assert.Contains(t, out, `cap_push("net")`)
	assert.Contains(t, out, "cap_pop()")
}

func TestGenerate_DunderIdentifierRejectedAtEmission(t *testing.T) {
	prog := parse(t, `x = __secret;`)
	_, _, diags := codegen.Generate("s.ml", prog)
	require.Len(t, diags, 1)
	assert.Equal(t, "DangerousIdentifier", string(diags[0].Kind))
}

func TestGenerate_SourceMapHasEntriesForStatements(t *testing.T) {
	prog := parse(t, "x = 1;\ny = 2;")
	_, sm, diags := codegen.Generate("s.ml", prog)
	require.Empty(t, diags)
	assert.NotEmpty(t, sm.Entries)
}

func TestGenerate_ArrowFunctionEmittedAsLuaClosure(t *testing.T) {
	prog := parse(t, `f = fn(x) => x + 1;`)
	out, _, diags := codegen.Generate("s.ml", prog)
	require.Empty(t, diags)
	assert.Contains(t, out, "(function(ml_x)")
}

func TestGenerate_ArithmeticRoutedThroughRuntimeHelpers(t *testing.T) {
	prog := parse(t, `x = 1 + 2;`)
	out, _, diags := codegen.Generate("s.ml", prog)
	require.Empty(t, diags)
	assert.Contains(t, out, "mlpy_add(1, 2)")
}

func TestGenerate_ContinueHasMatchingLabelInWhileLoop(t *testing.T) {
	prog := parse(t, `while (true) { continue; }`)
	out, _, diags := codegen.Generate("s.ml", prog)
	require.Empty(t, diags)
	assert.Contains(t, out, "goto mlpy_continue")
	assert.Contains(t, out, "::mlpy_continue::")
}

func TestGenerate_ContinueHasMatchingLabelInForInLoop(t *testing.T) {
	prog := parse(t, `for (x in xs) { continue; }`)
	out, _, diags := codegen.Generate("s.ml", prog)
	require.Empty(t, diags)
	assert.Contains(t, out, "goto mlpy_continue")
	assert.Contains(t, out, "::mlpy_continue::")
}
