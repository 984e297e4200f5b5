// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package security implements the shallow and deep security analyzers of
// spec.md §4.3/§4.4: blanket dunder rejection, the forbidden-name list,
// pattern-over-AST-shape detection, intraprocedural taint analysis, and
// capability-requirement inference.
package security

import (
	"strings"

	"mlpy/internal/diagnostics"
	"mlpy/internal/lang"
)

// ForbiddenNames mirrors registry.ForbiddenNames; duplicated here (rather
// than imported) so the analyzer has no dependency on the registry
// package's lifecycle — it only needs the static name list, not a live
// registry instance.
var ForbiddenNames = map[string]bool{
	"eval": true, "exec": true, "compile": true, "globals": true,
	"locals": true, "vars": true, "dir": true, "open": true,
	"exit": true, "quit": true,
}

// isDunder reports whether name begins with two underscores — the
// unconditional, exception-free rule spec.md §4.3 requires.
func isDunder(name string) bool {
	return strings.HasPrefix(name, "__")
}

// AnalyzeShallow walks prog rejecting dunder identifiers and forbidden
// names in every syntactic position: variable read/write, parameter,
// function name, attribute name, member-access right-hand side, and call
// target. It never returns false negatives by design for these two
// rules; the only documented gap is a dunder spelled as a string literal
// (e.g. "__class__"), which this pass does not and must not catch — that
// is the runtime ForbiddenAttribute shield's job, one layer down.
func AnalyzeShallow(file string, prog *lang.Program) []diagnostics.Diagnostic {
	var diags []diagnostics.Diagnostic

	check := func(name string, pos lang.Node) {
		if name == "" {
			return
		}
		if isDunder(name) {
			diags = append(diags, diagnosticAt(file, pos, diagnostics.KindDangerousIdentifier,
				"dangerous identifier: "+name+" begins with a reserved double underscore"))
			return
		}
		if ForbiddenNames[name] {
			diags = append(diags, diagnosticAt(file, pos, diagnostics.KindForbiddenName,
				"forbidden name: "+name+" is never permitted in ML source"))
		}
	}

	lang.Walk(prog, func(n lang.Node) bool {
		switch v := n.(type) {
		case *lang.FuncDef:
			check(v.Name, v)
			for _, p := range v.Params {
				check(p, v)
			}
		case *lang.ArrowFunc:
			for _, p := range v.Params {
				check(p, v)
			}
		case *lang.ForInStmt:
			check(v.Var, v)
		case *lang.CapabilityStmt:
			check(v.Name, v)
		case *lang.Primary:
			check(v.Ident, v)
		case *lang.PostfixOp:
			check(v.Member, v)
		case *lang.ImportStmt:
			for _, seg := range v.Path {
				check(seg, v)
			}
		case *lang.ObjectEntry:
			check(v.KeyIdent, v)
		}
		return true
	})

	return diags
}

func diagnosticAt(file string, pos lang.Node, kind diagnostics.Kind, msg string) diagnostics.Diagnostic {
	type spanner interface{ Span() diagnostics.Span }
	var span diagnostics.Span
	if s, ok := pos.(spanner); ok {
		span = s.Span()
	}
	return diagnostics.Diagnostic{
		File:     file,
		Line:     span.Line,
		Column:   span.Column,
		Kind:     kind,
		Message:  msg,
		Severity: diagnostics.SeverityCritical,
	}
}
