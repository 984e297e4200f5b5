// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package security

import (
	"strings"

	"mlpy/internal/diagnostics"
	"mlpy/internal/lang"
	"mlpy/internal/registry"
)

// Issue grades a deep-analysis finding. Unlike diagnostics.Diagnostic,
// Issue always carries a severity from this smaller set, matching
// spec.md §4.4's "info | warning | critical" grading independent of the
// shallow analyzer's pass/fail Diagnostic shape.
type Issue struct {
	Span     diagnostics.Span
	Severity diagnostics.Severity
	Message  string
}

// patternRule is one entry in the curated (regex-over-AST-shape,
// severity, message) table spec.md §4.4 names. Each Match function
// inspects one Postfix node (the shape every member-access-then-maybe-
// call expression takes) and reports whether the pattern fires.
type patternRule struct {
	name     string
	severity diagnostics.Severity
	message  string
	match    func(p *lang.Postfix) bool
}

var patternRules = []patternRule{
	{
		name:     "bridge-suffix-escape",
		severity: diagnostics.SeverityCritical,
		message:  "assignment source reads a member ending in _bridge — suspected internal-API escape attempt",
		match: func(p *lang.Postfix) bool {
			for _, op := range p.Ops {
				if strings.HasSuffix(op.Member, "_bridge") {
					return true
				}
			}
			return false
		},
	},
	{
		name:     "prototype-like-access",
		severity: diagnostics.SeverityWarning,
		message:  "member access resembles a prototype/constructor probe",
		match: func(p *lang.Postfix) bool {
			for _, op := range p.Ops {
				switch op.Member {
				case "constructor", "prototype", "__proto__":
					return true
				}
			}
			return false
		},
	},
}

// DetectPatterns runs the curated pattern table over every Postfix
// expression in prog.
func DetectPatterns(file string, prog *lang.Program) []Issue {
	var issues []Issue
	lang.Walk(prog, func(n lang.Node) bool {
		p, ok := n.(*lang.Postfix)
		if !ok {
			return true
		}
		for _, rule := range patternRules {
			if rule.match(p) {
				issues = append(issues, Issue{Span: p.Span(), Severity: rule.severity, Message: rule.message})
			}
		}
		return true
	})
	return issues
}

// whitelistedIOReturns lists the whitelisted I/O builtins whose return
// value is a taint source; the other source is a function parameter. The
// set is fixed here (only input); bridge-module calls are not listed.
var whitelistedIOReturns = map[string]bool{
	"input": true,
}

// TaintResult is one taint flow finding: a value reaching a
// capability-requiring sink without passing through a recognized
// sanitizer along every path from its source.
type TaintResult struct {
	Span     diagnostics.Span
	Variable string
	Sink     string
	Message  string
}

// sanitizers are call names treated as breaking a taint chain: once a
// tainted value has passed through one, the result is no longer tracked
// as tainted. This is an explicit whitelist, not a default-safe
// assumption — spec.md §4.4 requires every path to the sink to lack a
// sanitizer for the flow to be reported.
var sanitizers = map[string]bool{
	"str": true, "int": true, "float": true, "bool": true,
}

// AnalyzeTaint performs an intraprocedural forward taint analysis over
// every function body and the top-level program body independently
// (flow does not cross function boundaries except through the whitelisted
// call-site summaries spec.md §4.4 names — callees are treated as pure
// with respect to taint unless explicitly listed in sanitizers or
// whitelistedIOReturns).
func AnalyzeTaint(file string, prog *lang.Program, reg *registry.Registry) []TaintResult {
	var results []TaintResult

	analyzeBody := func(params []string, stmts []*lang.Stmt) {
		tainted := make(map[string]bool, len(params))
		for _, p := range params {
			tainted[p] = true
		}
		walkTaintStmts(stmts, tainted, reg, &results)
	}

	analyzeBody(nil, prog.Stmts)
	lang.Walk(prog, func(n lang.Node) bool {
		switch v := n.(type) {
		case *lang.FuncDef:
			analyzeBody(v.Params, v.Body.Stmts)
		case *lang.ArrowFunc:
			if v.BodyBlock != nil {
				analyzeBody(v.Params, v.BodyBlock.Stmts)
			}
		}
		return true
	})
	return results
}

func walkTaintStmts(stmts []*lang.Stmt, tainted map[string]bool, reg *registry.Registry, results *[]TaintResult) {
	for _, s := range stmts {
		walkTaintStmt(s, tainted, reg, results)
	}
}

func walkTaintStmt(s *lang.Stmt, tainted map[string]bool, reg *registry.Registry, results *[]TaintResult) {
	switch {
	case s.ExprStmt != nil:
		checkTaintExpr(s.ExprStmt.Expr, tainted, reg, results)
	case s.Return != nil && s.Return.Value != nil:
		checkTaintExpr(s.Return.Value, tainted, reg, results)
	case s.If != nil:
		walkTaintStmts(s.If.Then.Stmts, tainted, reg, results)
		for _, e := range s.If.Elifs {
			walkTaintStmts(e.Then.Stmts, tainted, reg, results)
		}
		if s.If.Else != nil {
			walkTaintStmts(s.If.Else.Stmts, tainted, reg, results)
		}
	case s.While != nil:
		walkTaintStmts(s.While.Body.Stmts, tainted, reg, results)
	case s.ForIn != nil:
		walkTaintStmts(s.ForIn.Body.Stmts, tainted, reg, results)
	case s.Block != nil:
		walkTaintStmts(s.Block.Stmts, tainted, reg, results)
	case s.Try != nil:
		walkTaintStmts(s.Try.Try.Stmts, tainted, reg, results)
		if s.Try.ExceptBody != nil {
			walkTaintStmts(s.Try.ExceptBody.Stmts, tainted, reg, results)
		}
		if s.Try.Finally != nil {
			walkTaintStmts(s.Try.Finally.Stmts, tainted, reg, results)
		}
	}

	// Assignment propagation: "y = x" marks y tainted iff x is; "y =
	// someSanitizer(x)" clears it. Only plain-identifier targets are
	// tracked by name; member/index assignment targets are left alone
	// since this pass tracks variable taint, not object-field taint.
	if s.ExprStmt != nil {
		a := s.ExprStmt.Expr.Value
		if a.Op == "=" {
			if name, ok := assignmentTargetName(a.Left); ok {
				tainted[name] = exprIsTainted(a.Right, tainted)
			}
		}
	}
}

// assignmentTargetName extracts the plain-identifier name from an
// assignment's left-hand Ternary, if it is one (as opposed to a member
// or index access target).
func assignmentTargetName(t *lang.Ternary) (string, bool) {
	u := t.Cond.Left.Left.Left.Left.Left.Left
	if u.Operand == nil || len(u.Operand.Ops) != 0 {
		return "", false
	}
	name := u.Operand.Target.Ident
	return name, name != ""
}

// exprIsTainted reports whether a (simplified: single-postfix-expression)
// Assignment right-hand side carries taint, per the sanitizer whitelist.
func exprIsTainted(a *lang.Assignment, tainted map[string]bool) bool {
	if a == nil {
		return false
	}
	u := a.Left.Cond.Left.Left.Left.Left.Left.Left
	if u.Operand == nil {
		return false
	}
	p := u.Operand
	if p.Target.Ident != "" && len(p.Ops) == 0 {
		return tainted[p.Target.Ident]
	}
	if len(p.Ops) > 0 {
		last := p.Ops[len(p.Ops)-1]
		if last.Call != nil && p.Target.Ident != "" {
			if sanitizers[p.Target.Ident] {
				return false
			}
			if whitelistedIOReturns[p.Target.Ident] {
				return true
			}
			for _, arg := range last.Call.Args {
				if exprIsTainted(arg.Value, tainted) {
					return true
				}
			}
		}
	}
	return false
}

// checkTaintExpr reports a TaintResult when a call target requiring a
// capability (per the registry) is invoked with an argument still
// tainted, and that call target is not itself a sanitizer.
func checkTaintExpr(e *lang.Expr, tainted map[string]bool, reg *registry.Registry, results *[]TaintResult) {
	if e == nil || reg == nil {
		return
	}
	lang.Walk(e, func(n lang.Node) bool {
		p, ok := n.(*lang.Postfix)
		if !ok || p.Target.Ident == "" || len(p.Ops) == 0 {
			return true
		}
		last := p.Ops[len(p.Ops)-1]
		if last.Call == nil {
			return true
		}
		desc, allowed := reg.IsAllowedCall(p.Target.Ident)
		if !allowed || len(desc.CapabilitiesRequired) == 0 {
			return true
		}
		for _, arg := range last.Call.Args {
			if exprIsTainted(arg.Value, tainted) {
				*results = append(*results, TaintResult{
					Span:     p.Span(),
					Variable: p.Target.Ident,
					Sink:     p.Target.Ident,
					Message:  "tainted value reaches capability-requiring call " + p.Target.Ident + " without a sanitizer",
				})
			}
		}
		return true
	})
}

// InferCapabilities returns the union of every capability required by a
// call or attribute access reachable in prog, per the registry's current
// (sealed) state. The result is attached to the Compiled Artifact.
func InferCapabilities(prog *lang.Program, reg *registry.Registry) []string {
	if reg == nil {
		return nil
	}
	seen := make(map[string]bool)
	var caps []string
	add := func(cs []string) {
		for _, c := range cs {
			if !seen[c] {
				seen[c] = true
				caps = append(caps, c)
			}
		}
	}

	lang.Walk(prog, func(n lang.Node) bool {
		switch v := n.(type) {
		case *lang.Postfix:
			if v.Target.Ident != "" && len(v.Ops) > 0 && v.Ops[len(v.Ops)-1].Call != nil {
				if desc, ok := reg.IsAllowedCall(v.Target.Ident); ok {
					add(desc.CapabilitiesRequired)
				}
			}
		}
		return true
	})
	return caps
}
