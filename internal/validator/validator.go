// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package validator walks a parsed ML AST and enforces invariants I1-I5
// (spec.md §3/§4.2): identifier syntax, assignment target shape, return
// placement, break/continue placement, and capability-block shape.
package validator

import (
	"regexp"

	"mlpy/internal/diagnostics"
	"mlpy/internal/lang"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// funcScope tracks whether the walker is currently inside a function-like
// body (FuncDef or ArrowFunc) and inside a loop body, so Return/Break/
// Continue placement (I3/I4) can be checked without re-walking.
type funcScope struct {
	inFunction int
	inLoop     int
}

// Validate walks prog and returns every ValidationError found, in
// discovery order. An empty result means the AST may proceed to security
// analysis.
func Validate(file string, prog *lang.Program) []diagnostics.Diagnostic {
	v := &walker{file: file}
	v.walkStmts(prog.Stmts, &funcScope{})
	return v.diags
}

type walker struct {
	file  string
	diags []diagnostics.Diagnostic
}

func (v *walker) err(pos lang.Node, kind diagnostics.Kind, msg string) {
	span := spanOf(pos)
	v.diags = append(v.diags, diagnostics.Diagnostic{
		File:     v.file,
		Line:     span.Line,
		Column:   span.Column,
		Kind:     kind,
		Message:  msg,
		Severity: diagnostics.SeverityCritical,
	})
}

// spanOf extracts a Line/Column pair from any AST node exposing a Span()
// method; nodes without one (leaf value holders) report a zero span,
// which is acceptable since every reported error here originates from a
// node type that does carry a position.
func spanOf(n lang.Node) diagnostics.Span {
	type spanner interface{ Span() diagnostics.Span }
	if s, ok := n.(spanner); ok {
		return s.Span()
	}
	return diagnostics.Span{}
}

func (v *walker) walkStmts(stmts []*lang.Stmt, scope *funcScope) {
	for _, s := range stmts {
		v.walkStmt(s, scope)
	}
}

func (v *walker) walkStmt(s *lang.Stmt, scope *funcScope) {
	switch {
	case s.If != nil:
		v.walkExpr(s.If.Cond, scope)
		v.walkStmts(s.If.Then.Stmts, scope)
		for _, e := range s.If.Elifs {
			v.walkExpr(e.Cond, scope)
			v.walkStmts(e.Then.Stmts, scope)
		}
		if s.If.Else != nil {
			v.walkStmts(s.If.Else.Stmts, scope)
		}
	case s.While != nil:
		v.walkExpr(s.While.Cond, scope)
		inner := *scope
		inner.inLoop++
		v.walkStmts(s.While.Body.Stmts, &inner)
	case s.ForIn != nil:
		if !identRe.MatchString(s.ForIn.Var) {
			v.err(s.ForIn, diagnostics.KindValidation, "for-in loop variable is not a valid identifier: "+s.ForIn.Var)
		}
		v.walkExpr(s.ForIn.Iterable, scope)
		inner := *scope
		inner.inLoop++
		v.walkStmts(s.ForIn.Body.Stmts, &inner)
	case s.FuncDef != nil:
		v.checkDuplicateParams(s.FuncDef, s.FuncDef.Params)
		inner := funcScope{inFunction: scope.inFunction + 1}
		v.walkStmts(s.FuncDef.Body.Stmts, &inner)
	case s.Break != nil:
		if scope.inLoop == 0 {
			v.err(s.Break, diagnostics.KindValidation, "break used outside a loop")
		}
	case s.Continue != nil:
		if scope.inLoop == 0 {
			v.err(s.Continue, diagnostics.KindValidation, "continue used outside a loop")
		}
	case s.Return != nil:
		if scope.inFunction == 0 {
			v.err(s.Return, diagnostics.KindValidation, "return used outside a function definition or arrow function")
		}
		if s.Return.Value != nil {
			v.walkExpr(s.Return.Value, scope)
		}
	case s.Throw != nil:
		v.walkExpr(s.Throw.Value, scope)
	case s.Try != nil:
		if s.Try.ExceptBody == nil && s.Try.Finally == nil {
			v.err(s.Try, diagnostics.KindValidation, "try statement must have an except or finally clause")
		}
		v.walkStmts(s.Try.Try.Stmts, scope)
		if s.Try.ExceptBody != nil {
			if s.Try.ExceptName != "" && !identRe.MatchString(s.Try.ExceptName) {
				v.err(s.Try, diagnostics.KindValidation, "except binding is not a valid identifier: "+s.Try.ExceptName)
			}
			v.walkStmts(s.Try.ExceptBody.Stmts, scope)
		}
		if s.Try.Finally != nil {
			v.walkStmts(s.Try.Finally.Stmts, scope)
		}
	case s.Import != nil:
		for _, seg := range s.Import.Path {
			if !identRe.MatchString(seg) {
				v.err(s.Import, diagnostics.KindValidation, "import path segment is not a simple identifier: "+seg)
			}
		}
	case s.Capability != nil:
		if !identRe.MatchString(s.Capability.Name) {
			v.err(s.Capability, diagnostics.KindValidation, "capability block name is not a simple identifier: "+s.Capability.Name)
		}
		if s.Capability.Body == nil {
			v.err(s.Capability, diagnostics.KindValidation, "capability block body must be a block")
		} else {
			v.walkStmts(s.Capability.Body.Stmts, scope)
		}
	case s.Block != nil:
		v.walkStmts(s.Block.Stmts, scope)
	case s.ExprStmt != nil:
		v.walkExpr(s.ExprStmt.Expr, scope)
	}
}

func (v *walker) checkDuplicateParams(pos lang.Node, params []string) {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if !identRe.MatchString(p) {
			v.err(pos, diagnostics.KindValidation, "parameter name is not a valid identifier: "+p)
			continue
		}
		if seen[p] {
			v.err(pos, diagnostics.KindValidation, "duplicate parameter name: "+p)
			continue
		}
		seen[p] = true
	}
}

// walkExpr checks I2 (assignment targets) and descends through every
// expression level, checking arrow-function bodies as nested function
// scopes along the way.
func (v *walker) walkExpr(e *lang.Expr, scope *funcScope) {
	if e == nil {
		return
	}
	v.walkAssignment(e.Value, scope)
}

func (v *walker) walkAssignment(a *lang.Assignment, scope *funcScope) {
	if a == nil {
		return
	}
	v.walkTernary(a.Left, scope)
	if a.Op != "" {
		if !isAssignableTarget(a.Left) {
			v.err(a, diagnostics.KindValidation, "assignment target must be an identifier, member access, or index access")
		}
		v.walkAssignment(a.Right, scope)
	}
}

// isAssignableTarget reports whether t (a Ternary, the grammar's
// lowest-precedence wrapper above Postfix) reduces — with every
// operator level contributing nothing but its Left/Cond operand — to a
// bare identifier or a Postfix expression ending in a member/index
// access. Any other operator present anywhere in the chain (ternary,
// logical, equality, relational, additive, multiplicative) means this is
// an ordinary expression, not an assignment target — I2.
func isAssignableTarget(t *lang.Ternary) bool {
	if t.Then != nil {
		return false
	}
	lo := t.Cond
	if len(lo.Rest) != 0 {
		return false
	}
	la := lo.Left
	if len(la.Rest) != 0 {
		return false
	}
	eq := la.Left
	if eq.Right != nil {
		return false
	}
	rel := eq.Left
	if rel.Right != nil {
		return false
	}
	add := rel.Left
	if len(add.Rest) != 0 {
		return false
	}
	mul := add.Left
	if len(mul.Rest) != 0 {
		return false
	}
	u := mul.Left
	if u.Neg != nil || u.Not != nil {
		return false
	}
	p := u.Operand
	if len(p.Ops) == 0 {
		return p.Target.Ident != ""
	}
	last := p.Ops[len(p.Ops)-1]
	return last.Member != "" || last.Index != nil
}

func (v *walker) walkTernary(t *lang.Ternary, scope *funcScope) {
	if t == nil {
		return
	}
	v.walkLogicalOr(t.Cond, scope)
	v.walkExpr(t.Then, scope)
	v.walkExpr(t.Else, scope)
}

func (v *walker) walkLogicalOr(lo *lang.LogicalOr, scope *funcScope) {
	if lo == nil {
		return
	}
	v.walkLogicalAnd(lo.Left, scope)
	for _, r := range lo.Rest {
		v.walkLogicalAnd(r, scope)
	}
}

func (v *walker) walkLogicalAnd(la *lang.LogicalAnd, scope *funcScope) {
	if la == nil {
		return
	}
	v.walkEquality(la.Left, scope)
	for _, r := range la.Rest {
		v.walkEquality(r, scope)
	}
}

func (v *walker) walkEquality(eq *lang.Equality, scope *funcScope) {
	if eq == nil {
		return
	}
	v.walkRelational(eq.Left, scope)
	v.walkRelational(eq.Right, scope)
}

func (v *walker) walkRelational(r *lang.Relational, scope *funcScope) {
	if r == nil {
		return
	}
	v.walkAdditive(r.Left, scope)
	v.walkAdditive(r.Right, scope)
}

func (v *walker) walkAdditive(a *lang.Additive, scope *funcScope) {
	if a == nil {
		return
	}
	v.walkMultiplicative(a.Left, scope)
	for _, t := range a.Rest {
		v.walkMultiplicative(t.Right, scope)
	}
}

func (v *walker) walkMultiplicative(m *lang.Multiplicative, scope *funcScope) {
	if m == nil {
		return
	}
	v.walkUnary(m.Left, scope)
	for _, t := range m.Rest {
		v.walkUnary(t.Right, scope)
	}
}

func (v *walker) walkUnary(u *lang.Unary, scope *funcScope) {
	if u == nil {
		return
	}
	switch {
	case u.Neg != nil:
		v.walkUnary(u.Neg, scope)
	case u.Not != nil:
		v.walkUnary(u.Not, scope)
	default:
		v.walkPostfix(u.Operand, scope)
	}
}

func (v *walker) walkPostfix(p *lang.Postfix, scope *funcScope) {
	if p == nil {
		return
	}
	v.walkPrimary(p.Target, scope)
	for _, op := range p.Ops {
		if op.Index != nil {
			v.walkExpr(op.Index, scope)
		}
		if op.Call != nil {
			for _, arg := range op.Call.Args {
				v.walkExpr(arg, scope)
			}
		}
	}
}

func (v *walker) walkPrimary(p *lang.Primary, scope *funcScope) {
	if p == nil {
		return
	}
	switch {
	case p.Group != nil:
		v.walkExpr(p.Group, scope)
	case p.Array != nil:
		for _, el := range p.Array.Elements {
			v.walkExpr(el, scope)
		}
	case p.Object != nil:
		for _, entry := range p.Object.Entries {
			v.walkExpr(entry.Value, scope)
		}
	case p.Ident != "":
		if !identRe.MatchString(p.Ident) {
			v.err(p, diagnostics.KindValidation, "identifier is not syntactically valid: "+p.Ident)
		}
	case p.Arrow != nil:
		v.checkDuplicateParams(p.Arrow, p.Arrow.Params)
		inner := funcScope{inFunction: scope.inFunction + 1}
		if p.Arrow.BodyBlock != nil {
			v.walkStmts(p.Arrow.BodyBlock.Stmts, &inner)
		} else {
			v.walkExpr(p.Arrow.Body, &inner)
		}
	}
}
