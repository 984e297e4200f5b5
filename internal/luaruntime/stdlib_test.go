// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package luaruntime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"mlpy/internal/luaruntime"
)

func TestRegisterStdlib_JSONRoundTripsArray(t *testing.T) {
	L, bridge := newState(t)
	luaruntime.RegisterStdlib(L, bridge)

	require.NoError(t, L.DoString(`
		arr = mlpy_array(1, 2, 3)
		encoded = mlpy_import("json").encode(arr)
		decoded = mlpy_import("json").decode(encoded)
		total = 0
		for _, v in mlpy_iter(decoded) do
			total = total + v
		end
	`))
	assert.Equal(t, lua.LNumber(6), L.GetGlobal("total"))
}

func TestRegisterStdlib_JSONRoundTripsObject(t *testing.T) {
	L, bridge := newState(t)
	luaruntime.RegisterStdlib(L, bridge)

	require.NoError(t, L.DoString(`
		obj = mlpy_object()
		safe_attr_set(obj, "name", "ml")
		encoded = mlpy_import("json").encode(obj)
		decoded = mlpy_import("json").decode(encoded)
		name = safe_attr_access(decoded, "name")
	`))
	assert.Equal(t, lua.LString("ml"), L.GetGlobal("name"))
}

func TestRegisterStdlib_JSONDecodeInvalidRaises(t *testing.T) {
	L, bridge := newState(t)
	luaruntime.RegisterStdlib(L, bridge)

	err := L.DoString(`mlpy_import("json").decode("not json")`)
	assert.Error(t, err)
}

func TestRegisterStdlib_ConsoleLogAcceptsMultipleArgs(t *testing.T) {
	L, bridge := newState(t)
	luaruntime.RegisterStdlib(L, bridge)

	require.NoError(t, L.DoString(`mlpy_import("console").log("hello", 1, true)`))
}

func TestRegisterStdlib_ConsoleWarnAndError(t *testing.T) {
	L, bridge := newState(t)
	luaruntime.RegisterStdlib(L, bridge)

	require.NoError(t, L.DoString(`
		mlpy_import("console").warn("careful")
		mlpy_import("console").error("broken")
	`))
}

func TestRegisterStdlib_UnknownModuleImportRaises(t *testing.T) {
	L, bridge := newState(t)
	luaruntime.RegisterStdlib(L, bridge)

	err := L.DoString(`mlpy_import("not_a_module")`)
	assert.Error(t, err)
}
