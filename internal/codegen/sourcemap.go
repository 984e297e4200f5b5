// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package codegen translates a validated, analyzed ML AST into Lua
// source text plus a source map, per spec.md §4.5. The emitted Lua calls
// into a small Go-implemented runtime bridge (package luaruntime)
// registered as Lua globals (safe_call, safe_attr_access,
// safe_method_call, safe_attr_set, cap_push, cap_pop, mlpy_int,
// mlpy_float) rather than inlining those helpers as Lua source —
// generalizing the teacher's internal/plugin/hostfunc pattern of
// registering capability-gated Go closures as Lua functions.
package codegen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MapEntry is one (emitted position) -> (source position) mapping.
type MapEntry struct {
	EmitLine, EmitCol int
	SrcFile           string
	SrcLine, SrcCol   int
}

// SourceMap is the sorted array of mappings spec.md §3/§4.5 describes,
// plus a symbol table for renamed identifiers. The generator emits every
// ML identifier with an "ml_" prefix (see luaIdent) but does not record
// those renamings here: Symbols is always empty, and Serialize/
// ParseSourceMap do not carry it.
type SourceMap struct {
	Entries []MapEntry
	Symbols map[string]string
}

func NewSourceMap() *SourceMap {
	return &SourceMap{Symbols: make(map[string]string)}
}

// Add records one mapping. Entries do not need to be added in sorted
// order; Finalize sorts them once generation completes.
func (m *SourceMap) Add(emitLine, emitCol int, srcFile string, srcLine, srcCol int) {
	m.Entries = append(m.Entries, MapEntry{emitLine, emitCol, srcFile, srcLine, srcCol})
}

// Finalize sorts entries by emitted position, a precondition for
// Lookup's binary search.
func (m *SourceMap) Finalize() {
	sort.Slice(m.Entries, func(i, j int) bool {
		if m.Entries[i].EmitLine != m.Entries[j].EmitLine {
			return m.Entries[i].EmitLine < m.Entries[j].EmitLine
		}
		return m.Entries[i].EmitCol < m.Entries[j].EmitCol
	})
}

// Lookup returns the smallest enclosing mapping for (line, col): the
// latest entry whose emitted position is not after (line, col). Entries
// must already be sorted (see Finalize).
func (m *SourceMap) Lookup(line, col int) (MapEntry, bool) {
	idx := sort.Search(len(m.Entries), func(i int) bool {
		e := m.Entries[i]
		if e.EmitLine != line {
			return e.EmitLine > line
		}
		return e.EmitCol > col
	})
	if idx == 0 {
		return MapEntry{}, false
	}
	return m.Entries[idx-1], true
}

// Serialize renders the sibling source-map file format spec.md §6
// defines: one mapping per line, "emit_line,emit_col,src_file,src_line,src_col".
func (m *SourceMap) Serialize() string {
	var b strings.Builder
	for _, e := range m.Entries {
		b.WriteString(strconv.Itoa(e.EmitLine))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(e.EmitCol))
		b.WriteByte(',')
		b.WriteString(e.SrcFile)
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(e.SrcLine))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(e.SrcCol))
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseSourceMap parses the sibling-file format Serialize produces, used
// by the cache's load path.
func ParseSourceMap(text string) (*SourceMap, error) {
	m := NewSourceMap()
	for i, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 5)
		if len(parts) != 5 {
			return nil, fmt.Errorf("source map line %d: expected 5 fields, got %d", i+1, len(parts))
		}
		emitLine, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("source map line %d: %w", i+1, err)
		}
		emitCol, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("source map line %d: %w", i+1, err)
		}
		srcLine, err := strconv.Atoi(parts[3])
		if err != nil {
			return nil, fmt.Errorf("source map line %d: %w", i+1, err)
		}
		srcCol, err := strconv.Atoi(parts[4])
		if err != nil {
			return nil, fmt.Errorf("source map line %d: %w", i+1, err)
		}
		m.Add(emitLine, emitCol, parts[2], srcLine, srcCol)
	}
	m.Finalize()
	return m, nil
}
