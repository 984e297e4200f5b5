// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package security_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlpy/internal/registry"
	"mlpy/internal/security"
)

func TestDetectPatterns_BridgeSuffixFlagged(t *testing.T) {
	prog := parse(t, `x = obj.internal_bridge;`)
	issues := security.DetectPatterns("s.ml", prog)
	require.Len(t, issues, 1)
	assert.Equal(t, "critical", string(issues[0].Severity))
}

func TestDetectPatterns_PrototypeAccessWarns(t *testing.T) {
	prog := parse(t, `x = obj.constructor;`)
	issues := security.DetectPatterns("s.ml", prog)
	require.Len(t, issues, 1)
	assert.Equal(t, "warning", string(issues[0].Severity))
}

func TestInferCapabilities_UnionOfCalls(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.RegisterModule("net", []string{"network.connect"}, map[string]registry.FuncDescriptor{
		"fetch": {},
	}))
	reg.Seal()

	prog := parse(t, `fetch("https://example.com");`)
	caps := security.InferCapabilities(prog, reg)
	assert.Equal(t, []string{"network.connect"}, caps)
}

func TestAnalyzeTaint_ParamReachesCapabilitySink(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.RegisterModule("net", []string{"network.connect"}, map[string]registry.FuncDescriptor{
		"fetch": {},
	}))
	reg.Seal()

	prog := parse(t, `fn f(url) { fetch(url); }`)
	results := security.AnalyzeTaint("t.ml", prog, reg)
	require.Len(t, results, 1)
	assert.Equal(t, "fetch", results[0].Sink)
}

func TestAnalyzeTaint_SanitizedArgumentDoesNotFlow(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.RegisterModule("net", []string{"network.connect"}, map[string]registry.FuncDescriptor{
		"fetch": {},
	}))
	reg.Seal()

	prog := parse(t, `fn f(url) { fetch(str(url)); }`)
	results := security.AnalyzeTaint("t.ml", prog, reg)
	assert.Empty(t, results, "passing the tainted value through a sanitizer must clear the taint")
}
