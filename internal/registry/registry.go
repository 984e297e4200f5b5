// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package registry implements the Safe-Attribute Registry and Function
// Whitelist (spec.md §3/§4.6): the single source of truth for what host
// functionality ML code may touch, and under which capability. Both
// tables share one lifecycle — register during an init phase, Seal(), and
// from then on every table is read-only — and one isolation mechanism: a
// push/pop overlay stack rather than a second coexisting registry.
package registry

import (
	"sync"

	"github.com/samber/oops"
)

// AttrKind distinguishes a method call from a plain property read.
type AttrKind string

const (
	AttrKindMethod   AttrKind = "method"
	AttrKindProperty AttrKind = "property"
)

// AttrDescriptor describes one allowed (type_tag, attribute_name) pair.
type AttrDescriptor struct {
	Kind                AttrKind
	CapabilitiesRequired []string
	ArityHint           int
}

// FuncDescriptor describes one allowed top-level or bridge-module call.
type FuncDescriptor struct {
	Module               string
	CapabilitiesRequired []string
	IsSafeBuiltin        bool
}

// whitelistedBuiltins are the explicit safe builtins spec.md §3 names.
var whitelistedBuiltins = []string{
	"typeof", "len", "print", "int", "float", "str", "bool", "abs", "min",
	"max", "sum", "round", "keys", "values", "range", "sorted", "input",
	"help", "getattr", "setattr", "hasattr",
}

// ForbiddenNames are never whitelisted under any name, module, or
// overlay — register attempts against these names always fail, sealed or
// not, matching the analyzer's blanket ban on the same list.
var ForbiddenNames = map[string]bool{
	"eval": true, "exec": true, "compile": true, "globals": true,
	"locals": true, "vars": true, "dir": true, "open": true,
	"exit": true, "quit": true,
}

type attrKey struct {
	typeTag string
	attr    string
}

// layer is one level of the overlay stack: a set of registrations plus
// its own independent sealed flag, so pushing a layer for a test gives it
// a fresh, unsealed surface to register stubs into without touching the
// layers beneath it.
type layer struct {
	funcs  map[string]FuncDescriptor
	attrs  map[attrKey]AttrDescriptor
	sealed bool
}

func newLayer() *layer {
	return &layer{
		funcs: make(map[string]FuncDescriptor),
		attrs: make(map[attrKey]AttrDescriptor),
	}
}

// Registry is the process-wide table of allowed calls and attribute
// accesses. The zero value is not usable; use New.
type Registry struct {
	mu     sync.RWMutex
	layers []*layer
}

// New returns a Registry with its base layer unsealed, ready for the
// host process's bridge-module registration phase.
func New() *Registry {
	return &Registry{layers: []*layer{newLayer()}}
}

// Push installs a new unsealed overlay on top of the stack, for test
// isolation: registrations made after Push are visible only until the
// matching Pop.
func (r *Registry) Push() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = append(r.layers, newLayer())
}

// Pop removes the topmost overlay. Popping the base layer is a
// programming error and panics, since the registry must always have at
// least one layer.
func (r *Registry) Pop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.layers) <= 1 {
		panic("registry: Pop called with no overlay to remove")
	}
	r.layers = r.layers[:len(r.layers)-1]
}

func (r *Registry) top() *layer { return r.layers[len(r.layers)-1] }

// Seal freezes the topmost overlay: further registration attempts
// against it fail until a new overlay is pushed.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.top().sealed = true
}

// RegisterModule registers every function a bridge module exports,
// attaching the module name and required capabilities to each.
func (r *Registry) RegisterModule(name string, capsRequired []string, funcs map[string]FuncDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.top()
	if l.sealed {
		return oops.In("registry").With("module", name).Errorf("registry overlay is sealed")
	}
	for fname, desc := range funcs {
		if ForbiddenNames[fname] {
			return oops.In("registry").With("func", fname).Errorf("%q is a forbidden name and may never be registered", fname)
		}
		if _, exists := l.funcs[fname]; exists {
			return oops.In("registry").With("func", fname).Errorf("function %q already registered in this overlay", fname)
		}
		desc.Module = name
		desc.CapabilitiesRequired = capsRequired
		l.funcs[fname] = desc
	}
	return nil
}

// RegisterFunc registers a single builtin or bridge function.
func (r *Registry) RegisterFunc(name string, desc FuncDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.top()
	if l.sealed {
		return oops.In("registry").With("func", name).Errorf("registry overlay is sealed")
	}
	if ForbiddenNames[name] {
		return oops.In("registry").With("func", name).Errorf("%q is a forbidden name and may never be registered", name)
	}
	if _, exists := l.funcs[name]; exists {
		return oops.In("registry").With("func", name).Errorf("function %q already registered in this overlay", name)
	}
	l.funcs[name] = desc
	return nil
}

// RegisterAttr registers one (type_tag, attribute_name) descriptor.
func (r *Registry) RegisterAttr(typeTag, attrName string, desc AttrDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.top()
	if l.sealed {
		return oops.In("registry").With("attr", attrName).Errorf("registry overlay is sealed")
	}
	key := attrKey{typeTag, attrName}
	if _, exists := l.attrs[key]; exists {
		return oops.In("registry").With("type", typeTag).With("attr", attrName).Errorf("attribute %q on %q already registered in this overlay", attrName, typeTag)
	}
	l.attrs[key] = desc
	return nil
}

// IsAllowedCall looks up name, searching overlays from the top down so a
// test overlay can shadow (not mutate) a base registration.
func (r *Registry) IsAllowedCall(name string) (FuncDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ForbiddenNames[name] {
		return FuncDescriptor{}, false
	}
	for i := len(r.layers) - 1; i >= 0; i-- {
		if d, ok := r.layers[i].funcs[name]; ok {
			return d, true
		}
	}
	return FuncDescriptor{}, false
}

// IsAllowedAttr looks up a (type_tag, attribute_name) pair the same way.
// Names beginning with "_" are never allowed regardless of registration,
// matching the runtime ForbiddenAttribute shield the code generator also
// enforces independently at emission time.
func (r *Registry) IsAllowedAttr(typeTag, attrName string) (AttrDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(attrName) > 0 && attrName[0] == '_' {
		return AttrDescriptor{}, false
	}
	key := attrKey{typeTag, attrName}
	for i := len(r.layers) - 1; i >= 0; i-- {
		if d, ok := r.layers[i].attrs[key]; ok {
			return d, true
		}
	}
	return AttrDescriptor{}, false
}

// RegisterDefaultBuiltins installs the explicit whitelist spec.md §3
// names, each as a capability-free safe builtin. Bridge modules
// (console/math/json/...) register separately through RegisterModule;
// this only seeds the always-present core builtins.
func (r *Registry) RegisterDefaultBuiltins() error {
	for _, name := range whitelistedBuiltins {
		if err := r.RegisterFunc(name, FuncDescriptor{IsSafeBuiltin: true}); err != nil {
			return err
		}
	}
	return nil
}
