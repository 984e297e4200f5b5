// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package pipeline

import (
	"context"

	"mlpy/internal/diagnostics"
	"mlpy/internal/registry"
)

// IncrementalContext is the "previous_context" spec.md §6 says an
// external REPL/LSP collaborator threads across edits: just enough of
// the last successful compile to let CompileIncremental decide whether
// full recompilation is even needed. mlpy never calls back into a
// REPL/LSP/DAP itself; these four functions are the entire surface such
// a collaborator is expected to drive.
type IncrementalContext struct {
	LastSource string
	LastResult Result
}

// CompileIncremental recompiles only if the source actually changed from
// the previous context, otherwise returns the prior Result unchanged.
// This is a convenience the full Compile already affords (it is pure and
// idempotent, so recompiling unconditionally would also be correct) but
// collaborators driving a tight edit loop care about not repeating the
// security-analysis passes on every keystroke.
func CompileIncremental(ctx context.Context, prev IncrementalContext, file, source, compilerVersion string, reg *registry.Registry) Result {
	if prev.LastSource == source && prev.LastResult.Artifact != nil {
		return prev.LastResult
	}
	return Compile(ctx, file, source, compilerVersion, reg)
}

// Diagnose runs the full pipeline and returns only the accumulated
// diagnostics, discarding the emitted artifact. Intended for editor
// "lint on save" integrations that never need the generated Lua.
func Diagnose(ctx context.Context, file, source, compilerVersion string, reg *registry.Registry) []diagnostics.Diagnostic {
	res := Compile(ctx, file, source, compilerVersion, reg)
	if res.Artifact == nil {
		return nil
	}
	return res.Artifact.Diagnostics.Items()
}

// HoverInfo is the minimal payload an editor needs to render a hover
// tooltip: the source span it resolved and a short description.
type HoverInfo struct {
	Span diagnostics.Span
	Text string
}

// Hover reports whether pos falls inside a diagnostic's span, surfacing
// that diagnostic's message as hover text. This is deliberately shallow:
// mlpy does not maintain a symbol table for type-on-hover, only
// diagnostic-on-hover, matching the GLOSSARY's description of the
// contract surface as "consumed by an external REPL/LSP/DAP" rather than
// implemented as one.
func Hover(res Result, file string, line, col int) (HoverInfo, bool) {
	if res.Artifact == nil {
		return HoverInfo{}, false
	}
	for _, d := range res.Artifact.Diagnostics.Items() {
		if d.File != file {
			continue
		}
		if d.Line == line && d.Column <= col {
			return HoverInfo{Span: diagnostics.Span{Line: d.Line, Column: d.Column}, Text: d.Message}, true
		}
	}
	return HoverInfo{}, false
}

// ResolvedPosition is the source location an emitted Lua position maps
// back to, via the artifact's source map.
type ResolvedPosition struct {
	File string
	Line int
	Col  int
}

// Resolve maps an emitted-source (line, col) back to its originating ML
// source position, for a sandboxed runtime error's traceback line or a
// DAP breakpoint set in the emitted file.
func Resolve(res Result, emitLine, emitCol int) (ResolvedPosition, bool) {
	if res.Artifact == nil || res.Artifact.SourceMap == nil {
		return ResolvedPosition{}, false
	}
	entry, ok := res.Artifact.SourceMap.Lookup(emitLine, emitCol)
	if !ok {
		return ResolvedPosition{}, false
	}
	return ResolvedPosition{File: entry.SrcFile, Line: entry.SrcLine, Col: entry.SrcCol}, true
}
