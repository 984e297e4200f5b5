// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package luaruntime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"mlpy/internal/capability"
	"mlpy/internal/luaruntime"
	"mlpy/internal/registry"
)

func newState(t *testing.T) (*lua.LState, *luaruntime.Bridge) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterDefaultBuiltins())
	reg.Seal()

	caps := capability.NewContext()
	bridge := luaruntime.NewBridge(reg, caps)

	factory := luaruntime.NewStateFactory()
	L, err := factory.NewState(context.Background(), bridge)
	require.NoError(t, err)
	t.Cleanup(L.Close)
	return L, bridge
}

func run(t *testing.T, L *lua.LState, src string) {
	t.Helper()
	require.NoError(t, L.DoString(src))
}

func TestNewState_DangerousLibrariesNotLoaded(t *testing.T) {
	L, _ := newState(t)
	assert.Equal(t, lua.LNil, L.GetGlobal("os"))
	assert.Equal(t, lua.LNil, L.GetGlobal("io"))
	assert.Equal(t, lua.LNil, L.GetGlobal("debug"))
}

func TestSafeCall_WhitelistedBuiltinSucceeds(t *testing.T) {
	L, _ := newState(t)
	require.NoError(t, L.DoString(`result = safe_call("abs", -3)`))
	assert.Equal(t, lua.LNumber(3), L.GetGlobal("result"))
}

func TestSafeCall_UnregisteredNameRaises(t *testing.T) {
	L, _ := newState(t)
	err := L.DoString(`safe_call("not_a_real_function")`)
	assert.Error(t, err)
}

func TestSafeCall_ForbiddenNameNeverDispatches(t *testing.T) {
	L, _ := newState(t)
	err := L.DoString(`safe_call("eval", "1+1")`)
	assert.Error(t, err)
}

func TestCapPushPop_Balanced(t *testing.T) {
	L, bridge := newState(t)
	bridge.GrantTokensFor("net", mustToken(t, "network", "connect"))

	require.NoError(t, L.DoString(`
		cap_push("net")
		cap_pop()
	`))
}

func TestCapPop_UnderflowRaises(t *testing.T) {
	L, _ := newState(t)
	err := L.DoString(`cap_pop()`)
	assert.Error(t, err)
}

func TestMlpyAdd_NumericAndStringPolymorphism(t *testing.T) {
	L, _ := newState(t)
	run(t, L, `n = mlpy_add(1, 2)`)
	assert.Equal(t, lua.LNumber(3), L.GetGlobal("n"))

	run(t, L, `s = mlpy_add("a", "b")`)
	assert.Equal(t, lua.LString("ab"), L.GetGlobal("s"))
}

func TestMlpyTruthy_NullIsFalsy(t *testing.T) {
	L, _ := newState(t)
	run(t, L, `t = mlpy_truthy(mlpy_null)`)
	assert.Equal(t, lua.LFalse, L.GetGlobal("t"))
}

func TestMlpyInt_FailsFastOnUnparsableString(t *testing.T) {
	L, _ := newState(t)
	err := L.DoString(`mlpy_int("not a number")`)
	assert.Error(t, err)
}

func TestMlpyArrayAndIter_RoundTrip(t *testing.T) {
	L, _ := newState(t)
	require.NoError(t, L.DoString(`
		arr = mlpy_array(10, 20, 30)
		total = 0
		for _, v in mlpy_iter(arr) do
			total = total + v
		end
	`))
	assert.Equal(t, lua.LNumber(60), L.GetGlobal("total"))
}

func mustToken(t *testing.T, resource, action string) capability.Token {
	t.Helper()
	tok, err := capability.NewToken(resource, []capability.Action{capability.Action(action)}, nil, "test", "n1")
	require.NoError(t, err)
	return tok
}
