// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlpy/internal/registry"
)

func TestRegisterDefaultBuiltins_AllWhitelisted(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterDefaultBuiltins())

	for _, name := range []string{"typeof", "len", "print", "getattr", "sorted"} {
		desc, ok := r.IsAllowedCall(name)
		assert.True(t, ok, name)
		assert.True(t, desc.IsSafeBuiltin, name)
	}
}

func TestForbiddenNames_NeverRegisterable(t *testing.T) {
	r := registry.New()
	for name := range registry.ForbiddenNames {
		err := r.RegisterFunc(name, registry.FuncDescriptor{IsSafeBuiltin: true})
		assert.Error(t, err, name)
		_, ok := r.IsAllowedCall(name)
		assert.False(t, ok, name)
	}
}

func TestRegisterModule_AttachesCapabilities(t *testing.T) {
	r := registry.New()
	err := r.RegisterModule("fs", []string{"filesystem.read"}, map[string]registry.FuncDescriptor{
		"readFile": {},
	})
	require.NoError(t, err)

	desc, ok := r.IsAllowedCall("readFile")
	require.True(t, ok)
	assert.Equal(t, "fs", desc.Module)
	assert.Equal(t, []string{"filesystem.read"}, desc.CapabilitiesRequired)
}

func TestSeal_RejectsFurtherRegistration(t *testing.T) {
	r := registry.New()
	r.Seal()

	err := r.RegisterFunc("whatever", registry.FuncDescriptor{})
	assert.Error(t, err)
}

func TestDuplicateRegistration_IsError(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterFunc("foo", registry.FuncDescriptor{}))
	err := r.RegisterFunc("foo", registry.FuncDescriptor{})
	assert.Error(t, err)
}

func TestPushPop_OverlayIsolation(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterFunc("base", registry.FuncDescriptor{}))
	r.Seal()

	r.Push()
	require.NoError(t, r.RegisterFunc("stub", registry.FuncDescriptor{}))

	_, ok := r.IsAllowedCall("stub")
	assert.True(t, ok)
	_, ok = r.IsAllowedCall("base")
	assert.True(t, ok, "base registrations remain visible through an overlay")

	r.Pop()
	_, ok = r.IsAllowedCall("stub")
	assert.False(t, ok, "popped overlay's registrations must not leak")
	_, ok = r.IsAllowedCall("base")
	assert.True(t, ok, "base layer survives pop")
}

func TestPop_BaseLayerPanics(t *testing.T) {
	r := registry.New()
	assert.Panics(t, func() { r.Pop() })
}

func TestIsAllowedAttr_RejectsUnderscorePrefixRegardlessOfRegistration(t *testing.T) {
	r := registry.New()
	err := r.RegisterAttr("Array", "_internal", registry.AttrDescriptor{Kind: registry.AttrKindProperty})
	require.NoError(t, err)

	_, ok := r.IsAllowedAttr("Array", "_internal")
	assert.False(t, ok, "underscore-prefixed attributes are always denied regardless of registry contents")
}

func TestIsAllowedAttr_AllowsRegisteredName(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.RegisterAttr("Array", "push", registry.AttrDescriptor{
		Kind:                registry.AttrKindMethod,
		CapabilitiesRequired: nil,
		ArityHint:            1,
	}))

	desc, ok := r.IsAllowedAttr("Array", "push")
	require.True(t, ok)
	assert.Equal(t, registry.AttrKindMethod, desc.Kind)
	assert.Equal(t, 1, desc.ArityHint)
}
