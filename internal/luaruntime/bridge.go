// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package luaruntime

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"mlpy/internal/capability"
	"mlpy/internal/registry"
)

// Bridge is the per-execution runtime context the generated Lua globals
// close over: the sealed Safe-Attribute Registry deciding what may be
// called or touched, and the capability Context tracking what is
// currently granted. One Bridge backs exactly one sandboxed run.
type Bridge struct {
	Registry *registry.Registry
	Caps     *capability.Context
	Builtins map[string]builtinFunc
	Modules  map[string]*lua.LTable

	grants map[string][]capability.Token
}

// NewBridge constructs a Bridge wired to reg and caps, with the default
// whitelisted builtins (see builtins.go) ready to dispatch through
// safe_call.
func NewBridge(reg *registry.Registry, caps *capability.Context) *Bridge {
	return &Bridge{Registry: reg, Caps: caps, Builtins: defaultBuiltins(), Modules: make(map[string]*lua.LTable)}
}

// RegisterModule makes a module's exported table available to
// mlpy_import under the given dotted path.
func (b *Bridge) RegisterModule(path string, table *lua.LTable) {
	b.Modules[path] = table
}

// mlpyImport resolves an "import a.b.c;" statement's compiled
// mlpy_import("a.b.c") call against the modules registered via
// RegisterModule. Unlike function/attribute access, module resolution is
// not capability-gated here: a module's individual exported functions
// still go through safe_call/safe_attr_access once imported, so gating
// happens at the point of use, not at import time.
func (b *Bridge) mlpyImport(L *lua.LState) int {
	path := L.CheckString(1)
	mod, ok := b.Modules[path]
	if !ok {
		L.RaiseError("import: unknown module %q", path)
		return 0
	}
	L.Push(mod)
	return 1
}

// Register installs every runtime-bridge global the code generator
// emits calls to.
func (b *Bridge) Register(L *lua.LState) {
	L.SetGlobal("safe_call", L.NewFunction(b.safeCall))
	L.SetGlobal("safe_call_value", L.NewFunction(b.safeCallValue))
	L.SetGlobal("safe_attr_access", L.NewFunction(b.safeAttrAccess))
	L.SetGlobal("safe_attr_set", L.NewFunction(b.safeAttrSet))
	L.SetGlobal("safe_method_call", L.NewFunction(b.safeMethodCall))
	L.SetGlobal("cap_push", L.NewFunction(b.capPush))
	L.SetGlobal("cap_pop", L.NewFunction(b.capPop))
	L.SetGlobal("mlpy_import", L.NewFunction(b.mlpyImport))
	registerValueHelpers(L)
}

// requireCapabilities checks every capability string a descriptor
// demands against the current Context, raising a Lua error (which the
// generator's pcall-based capability/try lowering turns into a catchable
// condition) on the first denial. A requirement string of the form
// "resource.action" is split on its last '.'; a bare string with no dot
// is checked against the synthetic action "use".
func (b *Bridge) requireCapabilities(L *lua.LState, descName string, caps []string) bool {
	for _, c := range caps {
		resource, action := splitCapability(c)
		if err := b.Caps.Require(resource, action); err != nil {
			L.RaiseError("capability denied: %s requires %s", descName, c)
			return false
		}
	}
	return true
}

func splitCapability(c string) (string, capability.Action) {
	idx := strings.LastIndex(c, ".")
	if idx < 0 {
		return c, capability.Action("use")
	}
	return c[:idx], capability.Action(c[idx+1:])
}

// safeCall dispatches a call by whitelisted name: arg 1 is the function
// name, the rest are its Lua arguments. Every call the generator emits
// for a bare "f(...)" expression goes through here (spec.md §4.5 point
// 1), except the int()/float() fail-fast conversions, which the
// generator emits as direct mlpy_int/mlpy_float calls instead.
func (b *Bridge) safeCall(L *lua.LState) int {
	name := L.CheckString(1)
	desc, ok := b.Registry.IsAllowedCall(name)
	if !ok {
		L.RaiseError("call to %q is not permitted: not in the safe-call whitelist", name)
		return 0
	}
	if !b.requireCapabilities(L, name, desc.CapabilitiesRequired) {
		return 0
	}
	fn, ok := b.Builtins[name]
	if !ok {
		L.RaiseError("call to %q is whitelisted but has no runtime implementation", name)
		return 0
	}

	args := make([]lua.LValue, 0, L.GetTop()-1)
	for i := 2; i <= L.GetTop(); i++ {
		args = append(args, L.Get(i))
	}
	results, err := fn(L, args)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	for _, r := range results {
		L.Push(r)
	}
	return len(results)
}

// safeCallValue calls an arbitrary already-produced callable Lua value
// (an ML closure, i.e. the result of a Postfix chain ending in a call
// against something other than a bare whitelisted name — spec.md §4.5's
// "calling a value, not a name" case). Closures are not subject to the
// name whitelist: they were already constructed from validated, analyzed
// ML source, so only their own body re-enters safe_call/safe_attr_access
// for anything requiring a check.
func (b *Bridge) safeCallValue(L *lua.LState) int {
	fn := L.CheckAny(1)
	nargs := L.GetTop() - 1
	args := make([]lua.LValue, 0, nargs)
	for i := 2; i <= L.GetTop(); i++ {
		args = append(args, L.Get(i))
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	return 1
}

// typeTagOf derives the ML type tag IsAllowedAttr keys on from a Lua
// runtime value. Arrays and objects are both Lua tables at runtime (see
// value.go's mlpy_array/mlpy_object); a table built by mlpy_object
// carries a "__mlpy_object" marker field distinguishing it from an
// array, since the registry's attribute table is keyed per ML semantic
// type rather than per Lua representation.
func typeTagOf(v lua.LValue) string {
	switch v.Type() {
	case lua.LTString:
		return "string"
	case lua.LTNumber:
		return "number"
	case lua.LTBool:
		return "bool"
	case lua.LTNil:
		return "null"
	case lua.LTFunction:
		return "function"
	case lua.LTTable:
		t := v.(*lua.LTable)
		if isNull(t) {
			return "null"
		}
		if t.RawGetString(objectMarkerKey) != lua.LNil {
			return "object"
		}
		return "array"
	default:
		return "unknown"
	}
}

// safeAttrAccess reads either a member (string key, from a Dot suffix)
// or an index (any key, from a '[...]' suffix) off a value, consulting
// the registry only for member reads — index access into an ML
// array/object is a value-model operation, not a host-attribute
// exposure, and is always permitted once the base value is already a
// table this runtime produced.
func (b *Bridge) safeAttrAccess(L *lua.LState) int {
	target := L.CheckAny(1)
	key := L.CheckAny(2)

	if ks, ok := key.(lua.LString); ok {
		if strings.HasPrefix(string(ks), "_") {
			L.RaiseError("forbidden attribute %q: names beginning with _ are never accessible", string(ks))
			return 0
		}
		tag := typeTagOf(target)
		if desc, ok := b.Registry.IsAllowedAttr(tag, string(ks)); ok {
			if !b.requireCapabilities(L, string(ks), desc.CapabilitiesRequired) {
				return 0
			}
			L.Push(indexValue(target, key))
			return 1
		}
		// Not a registered host attribute: fall through to plain
		// value-model field access (e.g. reading an object entry).
	}
	L.Push(indexValue(target, key))
	return 1
}

// safeAttrSet writes either a member or index key on target. Same
// registry/capability gating as safeAttrAccess for string-keyed member
// writes; any write is disallowed on a nil/non-table target.
func (b *Bridge) safeAttrSet(L *lua.LState) int {
	target := L.CheckAny(1)
	key := L.CheckAny(2)
	value := L.CheckAny(3)

	t, ok := target.(*lua.LTable)
	if !ok {
		L.RaiseError("cannot set attribute on a non-object value")
		return 0
	}
	if ks, ok := key.(lua.LString); ok {
		tag := typeTagOf(target)
		if desc, ok := b.Registry.IsAllowedAttr(tag, string(ks)); ok {
			if !b.requireCapabilities(L, string(ks), desc.CapabilitiesRequired) {
				return 0
			}
		}
	}
	t.RawSet(key, value)
	return 0
}

// safeMethodCall dispatches "target.method(args...)". Method lookup
// checks the registry the same way a plain attribute read would; once
// authorized, the resolved Lua function value is invoked directly so
// that an error raised inside the method body is distinguishable (by
// its own pcall frame, set up by the generator's try/except lowering)
// from a dispatch-time authorization failure.
func (b *Bridge) safeMethodCall(L *lua.LState) int {
	target := L.CheckAny(1)
	method := L.CheckString(2)
	nargs := L.GetTop() - 2
	args := make([]lua.LValue, 0, nargs)
	for i := 3; i <= L.GetTop(); i++ {
		args = append(args, L.Get(i))
	}

	tag := typeTagOf(target)
	if desc, ok := b.Registry.IsAllowedAttr(tag, method); ok {
		if !b.requireCapabilities(L, method, desc.CapabilitiesRequired) {
			return 0
		}
	} else {
		L.RaiseError("method %q is not permitted on a value of type %q", method, tag)
		return 0
	}

	fn := indexValue(target, lua.LString(method))
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, append([]lua.LValue{target}, args...)...); err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	ret := L.Get(-1)
	L.Pop(1)
	L.Push(ret)
	return 1
}

func indexValue(target, key lua.LValue) lua.LValue {
	t, ok := target.(*lua.LTable)
	if !ok {
		return lua.LNil
	}
	return t.RawGet(key)
}

// capPush opens a new capability frame. The generator emits this at the
// top of every "capability NAME { }" lowering with NAME as the sole
// argument; tokens for NAME are resolved from the enclosing process's
// capability manifest rather than passed through Lua, since tokens are
// minted once at program start (spec.md §4.7) and handed to the Bridge
// out of band via GrantTokensFor.
func (b *Bridge) capPush(L *lua.LState) int {
	name := L.CheckString(1)
	b.Caps.Push(name, b.tokensFor(name)...)
	return 0
}

// capPop closes the innermost capability frame. A stack underflow here
// is an internal code-generation bug (every push must be balanced), so
// it surfaces as a Lua error rather than a silent no-op.
func (b *Bridge) capPop(L *lua.LState) int {
	if err := b.Caps.Pop(); err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

// tokensFor returns the tokens minted for a named capability block.
// Populated by GrantTokensFor before execution begins; defaults to
// granting nothing, so an un-provisioned capability block denies
// everything inside it rather than failing open.
func (b *Bridge) tokensFor(name string) []capability.Token {
	return b.grants[name]
}

// GrantTokensFor registers the tokens a "capability NAME { }" block
// should receive on every cap_push("NAME") the compiled program emits.
// Call this during Bridge setup, before Register/NewState, once per
// capability name the program's manifest authorizes.
func (b *Bridge) GrantTokensFor(name string, tokens ...capability.Token) {
	if b.grants == nil {
		b.grants = make(map[string][]capability.Token)
	}
	b.grants[name] = append(b.grants[name], tokens...)
}
