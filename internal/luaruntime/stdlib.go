// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Stdlib bridge modules: small, always-available modules an ML program
// reaches via "import json;" / "import console;", registered through
// Bridge.RegisterModule the same way a future application-specific
// module would be. Generalizes the teacher's
// internal/plugin/hostfunc.Functions table (a fixed set of named
// Go-implemented calls exposed to sandboxed code) from individual
// functions into whole importable modules.
package luaruntime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// RegisterStdlib installs mlpy's built-in bridge modules ("json",
// "console") on b, so every sandboxed run gets them regardless of what
// application-specific modules a future host program adds.
func RegisterStdlib(L *lua.LState, b *Bridge) {
	b.RegisterModule("json", jsonModule(L))
	b.RegisterModule("console", consoleModule(L))
}

func jsonModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	mod.RawSetString("encode", L.NewFunction(jsonEncode))
	mod.RawSetString("decode", L.NewFunction(jsonDecode))
	return mod
}

// jsonEncode marshals an ML value (number, string, bool, mlpy_null,
// array, or object table) to a JSON string. No capability is required:
// json encode/decode is pure data transformation, not I/O.
func jsonEncode(L *lua.LState) int {
	v := L.CheckAny(1)
	data, err := json.Marshal(luaToGo(v))
	if err != nil {
		L.RaiseError("json.encode: %s", err.Error())
		return 0
	}
	L.Push(lua.LString(data))
	return 1
}

// jsonDecode parses a JSON string into an ML value: JSON objects become
// ML objects (mlpy_object-tagged tables), JSON arrays become ML arrays,
// so the result iterates and indexes the way code generated from ML
// literals would.
func jsonDecode(L *lua.LState) int {
	s := L.CheckString(1)
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		L.RaiseError("json.decode: %s", err.Error())
		return 0
	}
	L.Push(goToLua(L, v))
	return 1
}

// luaToGo converts an LValue produced by ML's value model into a plain
// Go value suitable for encoding/json, preserving object-vs-array shape
// via objectMarkerKey.
func luaToGo(v lua.LValue) any {
	switch t := v.(type) {
	case lua.LBool:
		return bool(t)
	case lua.LNumber:
		return float64(t)
	case lua.LString:
		return string(t)
	case *lua.LTable:
		if isNull(t) {
			return nil
		}
		if t.RawGetString(objectMarkerKey) != lua.LNil {
			out := make(map[string]any)
			t.ForEach(func(k, val lua.LValue) {
				ks, ok := k.(lua.LString)
				if !ok || string(ks) == objectMarkerKey {
					return
				}
				out[string(ks)] = luaToGo(val)
			})
			return out
		}
		var out []any
		n := t.Len()
		for i := 1; i <= n; i++ {
			out = append(out, luaToGo(t.RawGetInt(i)))
		}
		if out == nil {
			out = []any{}
		}
		return out
	default:
		return nil
	}
}

// goToLua converts a decoded-JSON Go value back into ML's table shape:
// a map becomes an mlpy_object-tagged table with deterministically
// (sorted-key) assigned entries, a slice becomes a plain array table.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		null := L.NewTable()
		null.RawSetString("__mlpy_null", lua.LTrue)
		return null
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := L.NewTable()
		for i, elem := range val {
			t.RawSetInt(i+1, goToLua(L, elem))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		t.RawSetString(objectMarkerKey, lua.LTrue)
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.RawSetString(k, goToLua(L, val[k]))
		}
		return t
	default:
		return lua.LNil
	}
}

func consoleModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	mod.RawSetString("log", L.NewFunction(consoleLevel(slog.LevelInfo)))
	mod.RawSetString("warn", L.NewFunction(consoleLevel(slog.LevelWarn)))
	mod.RawSetString("error", L.NewFunction(consoleLevel(slog.LevelError)))
	return mod
}

// consoleLevel builds a console.log/warn/error implementation that joins
// its arguments the same way print() does and emits them through slog at
// level, so a sandboxed program's diagnostic output lands in the host's
// structured logs rather than only its captured stdout.
func consoleLevel(level slog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = lua.LVAsString(L.Get(i))
		}
		slog.Log(context.Background(), level, strings.Join(parts, " "), "source", "ml_program")
		return 0
	}
}
