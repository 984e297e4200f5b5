// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package luaruntime

import (
	lua "github.com/yuin/gopher-lua"
)

// registerValueHelpers installs the value-model globals the generator
// emits for every operator and literal that is not a plain Lua
// primitive one-to-one: truthiness, polymorphic +/-, equality,
// iteration, array/object construction, ML's distinguished null, and
// the fail-fast int()/float() conversions (spec.md §4.5 point 5). These
// do not depend on a Bridge's registry/capability state, unlike
// safe_call and friends in bridge.go.
func registerValueHelpers(L *lua.LState) {
	null := L.NewTable()
	null.RawSetString("__mlpy_null", lua.LTrue)
	L.SetGlobal("mlpy_null", null)

	L.SetGlobal("mlpy_truthy", L.NewFunction(luaTruthy))
	L.SetGlobal("mlpy_eq", L.NewFunction(luaEq))
	L.SetGlobal("mlpy_add", L.NewFunction(luaAdd))
	L.SetGlobal("mlpy_sub", L.NewFunction(luaSub))
	L.SetGlobal("mlpy_iter", L.NewFunction(luaIter))
	L.SetGlobal("mlpy_array", L.NewFunction(luaArray))
	L.SetGlobal("mlpy_object", L.NewFunction(luaObject))
	L.SetGlobal("mlpy_int", L.NewFunction(luaInt))
	L.SetGlobal("mlpy_float", L.NewFunction(luaFloat))
}

func isNull(v lua.LValue) bool {
	t, ok := v.(*lua.LTable)
	if !ok {
		return false
	}
	return t.RawGetString("__mlpy_null") == lua.LTrue
}

func luaTruthy(L *lua.LState) int {
	v := L.CheckAny(1)
	if isNull(v) {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(truthy(v)))
	return 1
}

// luaEq implements ML's "==": numeric/string/bool compare by value;
// null compares equal only to null; tables (arrays and objects)
// compare by reference, matching Lua's own table equality — ML does not
// define structural equality for compound values.
func luaEq(L *lua.LState) int {
	a := L.CheckAny(1)
	b := L.CheckAny(2)
	if isNull(a) || isNull(b) {
		L.Push(lua.LBool(isNull(a) && isNull(b)))
		return 1
	}
	L.Push(lua.LBool(a == b))
	return 1
}

// luaAdd implements ML's polymorphic "+": numeric addition when both
// operands are numbers, string concatenation otherwise (either operand
// being a string forces the other to its string form).
func luaAdd(L *lua.LState) int {
	a := L.CheckAny(1)
	b := L.CheckAny(2)
	an, aIsNum := a.(lua.LNumber)
	bn, bIsNum := b.(lua.LNumber)
	if aIsNum && bIsNum {
		L.Push(lua.LNumber(an + bn))
		return 1
	}
	L.Push(lua.LString(lua.LVAsString(a) + lua.LVAsString(b)))
	return 1
}

func luaSub(L *lua.LState) int {
	a := L.CheckNumber(1)
	b := L.CheckNumber(2)
	L.Push(a - b)
	return 1
}

// luaIter adapts an array, object, or string into the three-value
// (iterator, state, control) form Lua's generic "for" statement expects.
// Objects iterate their values, not their keys — pairing with keys()
// when key access is also needed, per spec.md §3's keys()/values()
// builtin pair.
func luaIter(L *lua.LState) int {
	v := L.CheckAny(1)
	switch t := v.(type) {
	case lua.LString:
		chars := L.NewTable()
		for i, r := range string(t) {
			chars.RawSetInt(i+1, lua.LString(string(r)))
		}
		return pushIpairs(L, chars)
	case *lua.LTable:
		if t.RawGetString(objectMarkerKey) != lua.LNil {
			snap := L.NewTable()
			idx := 1
			t.ForEach(func(k, val lua.LValue) {
				if ks, ok := k.(lua.LString); ok && string(ks) == objectMarkerKey {
					return
				}
				snap.RawSetInt(idx, val)
				idx++
			})
			return pushIpairs(L, snap)
		}
		return pushIpairs(L, t)
	default:
		L.RaiseError("value of type %q is not iterable", typeTagOf(v))
		return 0
	}
}

func pushIpairs(L *lua.LState, t *lua.LTable) int {
	ipairsFn := L.GetGlobal("ipairs")
	if err := L.CallByParam(lua.P{Fn: ipairsFn, NRet: 3, Protect: true}, t); err != nil {
		L.RaiseError("mlpy_iter: %s", err.Error())
		return 0
	}
	// CallByParam leaves its 3 results on top of the stack already.
	return 3
}

func luaArray(L *lua.LState) int {
	t := L.NewTable()
	n := L.GetTop()
	for i := 1; i <= n; i++ {
		t.RawSetInt(i, L.Get(i))
	}
	L.Push(t)
	return 1
}

func luaObject(L *lua.LState) int {
	t := L.NewTable()
	t.RawSetString(objectMarkerKey, lua.LTrue)
	n := L.GetTop()
	for i := 1; i+1 <= n; i += 2 {
		key := L.Get(i)
		val := L.Get(i + 1)
		t.RawSet(key, val)
	}
	L.Push(t)
	return 1
}

func luaInt(L *lua.LState) int {
	v, err := mlpyIntValue(L.CheckAny(1))
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(v)
	return 1
}

func luaFloat(L *lua.LState) int {
	v, err := mlpyFloatValue(L.CheckAny(1))
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(v)
	return 1
}
