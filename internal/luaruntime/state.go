// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package luaruntime hosts the Go-implemented side of the Lua runtime
// bridge the code generator emits calls to: safe_call, safe_attr_access,
// safe_method_call, safe_attr_set, cap_push, cap_pop, mlpy_int,
// mlpy_float, and the small set of value-model helpers (mlpy_add,
// mlpy_truthy, mlpy_iter, ...) that give ML's semantics to otherwise
// plain Lua tables and values. This generalizes the teacher's
// internal/plugin/lua (sandboxed state construction) and
// internal/plugin/hostfunc (capability-gated host functions registered
// as Lua globals) packages from one plugin runtime to the compiled
// output of an entire language.
package luaruntime

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// safeLibrary is one standard Lua library considered safe to expose to
// compiled ML code.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// defaultSafeLibraries mirrors the teacher's policy exactly: base,
// table, string, math are safe; os, io, debug, and package stay closed
// since they would hand a sandboxed program a route straight through the
// capability layer (filesystem, process control, and bytecode loading).
func defaultSafeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// StateFactory builds fresh sandboxed Lua states. Each compiled program
// execution gets its own state: states are not reused across runs.
type StateFactory struct {
	libraries []safeLibrary
}

// NewStateFactory returns a factory loading the default safe library set.
func NewStateFactory() *StateFactory {
	return &StateFactory{libraries: defaultSafeLibraries()}
}

// NewState creates an *lua.LState with only the safe libraries loaded
// and the runtime bridge (see bridge.go) registered as globals, ready to
// run one Generate'd program.
func (f *StateFactory) NewState(ctx context.Context, b *Bridge) (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("luaruntime: failed to open library %s: %w", lib.name, err)
		}
	}

	b.Register(L)
	return L, nil
}
