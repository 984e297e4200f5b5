// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"mlpy/internal/diagnostics"
	"mlpy/internal/lang"
)

// Pure operators are the only shapes the generator emits directly as
// host operators rather than through safe_call — spec.md §4.5 point 1's
// "known-safe set of pure operators (arithmetic, comparison, boolean)".
// Every other call, including every user-defined function, is wrapped.

// Generator holds the mutable state of one Generate invocation: the
// output buffer, its current emitted line/column (for the source map),
// and the open capability-push count (to verify the balanced-push/pop
// invariant the generator itself must uphold).
type Generator struct {
	file       string
	buf        strings.Builder
	line, col  int
	sm         *SourceMap
	capBalance int // running total: +1 per push emitted, -1 per pop emitted
	diags      []diagnostics.Diagnostic
}

// Generate translates prog into Lua source text plus a source map.
// prog must already have passed validation and shallow security
// analysis; Generate re-enforces the blanket dunder rule at emission
// time regardless (spec.md §4.5 point 9, "belt and suspenders").
func Generate(file string, prog *lang.Program) (string, *SourceMap, []diagnostics.Diagnostic) {
	g := &Generator{file: file, sm: NewSourceMap(), line: 1, col: 1}
	g.emit("local mlpy_scope = {}\n")
	for _, s := range prog.Stmts {
		g.genStmt(s, "mlpy_scope")
	}
	g.sm.Finalize()

	if g.capBalance != 0 {
		g.diags = append(g.diags, diagnostics.Diagnostic{
			File:     file,
			Kind:     diagnostics.KindCodeGenInternal,
			Message:  fmt.Sprintf("internal error: unbalanced capability push/pop emission (balance=%d)", g.capBalance),
			Severity: diagnostics.SeverityCritical,
		})
	}
	return g.buf.String(), g.sm, g.diags
}

func (g *Generator) emit(s string) {
	g.buf.WriteString(s)
	for _, r := range s {
		if r == '\n' {
			g.line++
			g.col = 1
		} else {
			g.col++
		}
	}
}

func (g *Generator) mark(span diagnostics.Span) {
	if span.Line == 0 {
		return
	}
	g.sm.Add(g.line, g.col, g.file, span.Line, span.Column)
}

func (g *Generator) fail(span diagnostics.Span, msg string) {
	g.diags = append(g.diags, diagnostics.Diagnostic{
		File:     g.file,
		Line:     span.Line,
		Column:   span.Column,
		Kind:     diagnostics.KindCodeGenInternal,
		Message:  msg,
		Severity: diagnostics.SeverityCritical,
	})
}

// checkIdent re-enforces the blanket dunder rule at emission time
// independent of whether the security analyzer ran.
func (g *Generator) checkIdent(name string, span diagnostics.Span) {
	if strings.HasPrefix(name, "__") {
		g.diags = append(g.diags, diagnostics.Diagnostic{
			File:     g.file,
			Line:     span.Line,
			Column:   span.Column,
			Kind:     diagnostics.KindDangerousIdentifier,
			Message:  "refusing to emit dangerous identifier: " + name,
			Severity: diagnostics.SeverityCritical,
		})
	}
}

func luaQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func (g *Generator) genStmts(stmts []*lang.Stmt, scope string) {
	for _, s := range stmts {
		g.genStmt(s, scope)
	}
}

func (g *Generator) genStmt(s *lang.Stmt, scope string) {
	switch {
	case s.If != nil:
		g.mark(s.If.Cond.Span())
		g.emit("if mlpy_truthy(")
		g.genExpr(s.If.Cond, scope)
		g.emit(") then\n")
		g.genStmts(s.If.Then.Stmts, scope)
		for _, e := range s.If.Elifs {
			g.emit("elseif mlpy_truthy(")
			g.genExpr(e.Cond, scope)
			g.emit(") then\n")
			g.genStmts(e.Then.Stmts, scope)
		}
		if s.If.Else != nil {
			g.emit("else\n")
			g.genStmts(s.If.Else.Stmts, scope)
		}
		g.emit("end\n")

	case s.While != nil:
		g.emit("while mlpy_truthy(")
		g.genExpr(s.While.Cond, scope)
		g.emit(") do\n")
		g.genStmts(s.While.Body.Stmts, scope)
		g.emit("::mlpy_continue::\n")
		g.emit("end\n")

	case s.ForIn != nil:
		g.checkIdent(s.ForIn.Var, s.ForIn.Span())
		g.emit("for _, " + luaIdent(s.ForIn.Var) + " in mlpy_iter(")
		g.genExpr(s.ForIn.Iterable, scope)
		g.emit(") do\n")
		g.genStmts(s.ForIn.Body.Stmts, scope)
		g.emit("::mlpy_continue::\n")
		g.emit("end\n")

	case s.FuncDef != nil:
		g.checkIdent(s.FuncDef.Name, s.FuncDef.Span())
		for _, p := range s.FuncDef.Params {
			g.checkIdent(p, s.FuncDef.Span())
		}
		g.emit("function " + luaIdent(s.FuncDef.Name) + "(" + strings.Join(luaIdents(s.FuncDef.Params), ", ") + ")\n")
		g.genStmts(s.FuncDef.Body.Stmts, scope)
		g.emit("end\n")

	case s.Break != nil:
		g.emit("break\n")

	case s.Continue != nil:
		// Lua has no "continue"; goto is the idiomatic lowering.
		g.emit("goto mlpy_continue\n")

	case s.Return != nil:
		g.emit("do return ")
		if s.Return.Value != nil {
			g.genExpr(s.Return.Value, scope)
		} else {
			g.emit("nil")
		}
		g.emit(" end\n")

	case s.Throw != nil:
		g.emit("error(")
		g.genExpr(s.Throw.Value, scope)
		g.emit(")\n")

	case s.Try != nil:
		g.genTry(s.Try, scope)

	case s.Import != nil:
		g.checkIdent(strings.Join(s.Import.Path, "."), s.Import.Span())
		g.emit("local " + luaIdent(s.Import.Path[len(s.Import.Path)-1]) + " = mlpy_import(" + luaQuote(strings.Join(s.Import.Path, ".")) + ")\n")

	case s.Capability != nil:
		g.genCapability(s.Capability, scope)

	case s.Block != nil:
		g.emit("do\n")
		g.genStmts(s.Block.Stmts, scope)
		g.emit("end\n")

	case s.ExprStmt != nil:
		g.mark(s.ExprStmt.Span())
		g.genExpr(s.ExprStmt.Expr, scope)
		g.emit("\n")
	}
}

// genTry lowers try/except/finally onto Lua's pcall, since Lua has no
// native exception-handling statement syntax.
func (g *Generator) genTry(t *lang.TryStmt, scope string) {
	g.emit("do\n  local mlpy_ok, mlpy_err = pcall(function()\n")
	g.genStmts(t.Try.Stmts, scope)
	g.emit("  end)\n")
	if t.ExceptBody != nil {
		if t.ExceptName != "" {
			g.checkIdent(t.ExceptName, t.Span())
			g.emit("  if not mlpy_ok then\n    local " + luaIdent(t.ExceptName) + " = mlpy_err\n")
		} else {
			g.emit("  if not mlpy_ok then\n")
		}
		g.genStmts(t.ExceptBody.Stmts, scope)
		g.emit("  end\n")
	}
	if t.Finally != nil {
		g.genStmts(t.Finally.Stmts, scope)
	}
	g.emit("end\n")
}

var capCounter int

// genCapability emits a balanced cap_push/cap_pop pair around the block
// body using pcall so the pop fires on every exit path — normal fall
// through, a thrown error, or an early return/break inside the block —
// satisfying spec.md §4.5 point 6.
func (g *Generator) genCapability(c *lang.CapabilityStmt, scope string) {
	g.checkIdent(c.Name, c.Span())
	capCounter++
	label := fmt.Sprintf("mlpy_cap_%d", capCounter)
	g.emit("do\n  cap_push(" + luaQuote(c.Name) + ")\n")
	g.capBalance++
	g.emit("  local " + label + "_ok, " + label + "_err = pcall(function()\n")
	g.genStmts(c.Body.Stmts, scope)
	g.emit("  end)\n  cap_pop()\n")
	g.capBalance--
	g.emit("  if not " + label + "_ok then error(" + label + "_err) end\n")
	g.emit("end\n")
}

func luaIdent(name string) string { return "ml_" + name }

func luaIdents(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = luaIdent(n)
	}
	return out
}

// genExpr emits scope-aware Lua for any expression. scope is currently
// unused by the identifier-naming scheme (ML has function-level scoping
// mapped directly onto Lua locals/globals by name prefix) but is
// threaded through for a future nested-closure renaming pass.
func (g *Generator) genExpr(e *lang.Expr, scope string) {
	g.genAssignment(e.Value, scope)
}

func (g *Generator) genAssignment(a *lang.Assignment, scope string) {
	if a.Op == "" {
		g.genTernary(a.Left, scope)
		return
	}
	g.genAssignTarget(a.Left, scope, func() { g.genAssignment(a.Right, scope) })
}

// genAssignTarget emits "<target> = <value>" for an identifier target or
// routes to safe_attr_set for a member/index target, per spec.md §4.5
// point 3.
func (g *Generator) genAssignTarget(t *lang.Ternary, scope string, genValue func()) {
	u := t.Cond.Left.Left.Left.Left.Left.Left
	p := u.Operand
	if len(p.Ops) == 0 {
		g.checkIdent(p.Target.Ident, p.Span())
		g.emit(luaIdent(p.Target.Ident) + " = ")
		genValue()
		return
	}
	last := p.Ops[len(p.Ops)-1]
	prefixOps := p.Ops[:len(p.Ops)-1]
	if last.Member != "" {
		g.checkIdent(last.Member, p.Span())
		g.emit("safe_attr_set(")
		g.genPostfixChain(p.Target, prefixOps)
		g.emit(", " + luaQuote(last.Member) + ", ")
		genValue()
		g.emit(")")
		return
	}
	// index target
	g.emit("safe_attr_set(")
	g.genPostfixChain(p.Target, prefixOps)
	g.emit(", ")
	g.genExpr(last.Index, scope)
	g.emit(", ")
	genValue()
	g.emit(")")
}

func (g *Generator) genTernary(t *lang.Ternary, scope string) {
	if t.Then == nil {
		g.genLogicalOr(t.Cond, scope)
		return
	}
	g.emit("(mlpy_truthy(")
	g.genLogicalOr(t.Cond, scope)
	g.emit(") and (")
	g.genExpr(t.Then, scope)
	g.emit(") or (")
	g.genExpr(t.Else, scope)
	g.emit("))")
}

func (g *Generator) genLogicalOr(lo *lang.LogicalOr, scope string) {
	g.genLogicalAnd(lo.Left, scope)
	for _, r := range lo.Rest {
		g.emit(" or ")
		g.genLogicalAnd(r, scope)
	}
}

func (g *Generator) genLogicalAnd(la *lang.LogicalAnd, scope string) {
	g.genEquality(la.Left, scope)
	for _, r := range la.Rest {
		g.emit(" and ")
		g.genEquality(r, scope)
	}
}

func (g *Generator) genEquality(eq *lang.Equality, scope string) {
	if eq.Right == nil {
		g.genRelational(eq.Left, scope)
		return
	}
	op := "=="
	if eq.Op == "!=" {
		op = "~="
	}
	g.emit("mlpy_eq(")
	g.genRelational(eq.Left, scope)
	g.emit(", ")
	g.genRelational(eq.Right, scope)
	g.emit(") " + opPlaceholder(op))
}

// opPlaceholder exists so mlpy_eq's result (a boolean) combines with the
// requested polarity without duplicating the comparison: "==" keeps the
// boolean as-is ("== true"), "~=" negates it ("== false").
func opPlaceholder(op string) string {
	if op == "~=" {
		return "== false"
	}
	return "== true"
}

func (g *Generator) genRelational(r *lang.Relational, scope string) {
	if r.Right == nil {
		g.genAdditive(r.Left, scope)
		return
	}
	g.emit("(")
	g.genAdditive(r.Left, scope)
	g.emit(" " + r.Op + " ")
	g.genAdditive(r.Right, scope)
	g.emit(")")
}

// genAdditive left-folds a chain of +/- terms through the mlpy_add /
// mlpy_sub runtime helpers. ML's "+" is polymorphic (numeric add or
// string concatenation) in a way neither Lua's "+" nor ".." is on their
// own, so both operators are routed through the runtime bridge rather
// than emitted directly.
func (g *Generator) genAdditive(a *lang.Additive, scope string) {
	if len(a.Rest) == 0 {
		g.genMultiplicative(a.Left, scope)
		return
	}
	for _, t := range a.Rest {
		if t.Op == "+" {
			g.emit("mlpy_add(")
		} else {
			g.emit("mlpy_sub(")
		}
	}
	g.genMultiplicative(a.Left, scope)
	for _, t := range a.Rest {
		g.emit(", ")
		g.genMultiplicative(t.Right, scope)
		g.emit(")")
	}
}

func (g *Generator) genMultiplicative(m *lang.Multiplicative, scope string) {
	g.genUnary(m.Left, scope)
	for _, t := range m.Rest {
		g.emit(" " + t.Op + " ")
		g.genUnary(t.Right, scope)
	}
}

func (g *Generator) genUnary(u *lang.Unary, scope string) {
	switch {
	case u.Neg != nil:
		g.emit("(-")
		g.genUnary(u.Neg, scope)
		g.emit(")")
	case u.Not != nil:
		g.emit("(not mlpy_truthy(")
		g.genUnary(u.Not, scope)
		g.emit("))")
	default:
		g.genPostfix(u.Operand, scope)
	}
}

func (g *Generator) genPostfix(p *lang.Postfix, scope string) {
	g.genPostfixChain(p.Target, p.Ops)
}

// genPostfixChain emits a Primary target followed by a sequence of
// member/index/call suffixes, wrapping every call through safe_call,
// every attribute read through safe_attr_access, and every method-call
// shape (member access immediately followed by a call) through
// safe_method_call, per spec.md §4.5 points 1-3.
func (g *Generator) genPostfixChain(target *lang.Primary, ops []*lang.PostfixOp) {
	if len(ops) == 0 {
		g.genPrimary(target)
		return
	}

	// int(x)/float(x) are fail-fast conversions, not dispatched calls:
	// emit them as direct runtime-bridge calls (spec.md §4.5 point 5)
	// rather than routing them through safe_call's whitelist dispatch.
	if len(ops) == 1 && ops[0].Call != nil && len(ops[0].Call.Args) == 1 {
		if target.Ident == "int" || target.Ident == "float" {
			g.emit("mlpy_" + target.Ident + "(")
			g.genExpr(ops[0].Call.Args[0], "")
			g.emit(")")
			return
		}
	}

	// Detect the common "f(args)" shape: a bare identifier target with a
	// single trailing call and nothing else — emitted via safe_call.
	if len(ops) == 1 && ops[0].Call != nil && target.Ident != "" {
		g.checkIdent(target.Ident, target.Span())
		g.emit("safe_call(" + luaQuote(target.Ident))
		for _, arg := range ops[0].Call.Args {
			g.emit(", ")
			g.genExpr(arg, "")
		}
		g.emit(")")
		return
	}

	// Method-call shape: "...member(args)" — wrap via safe_method_call
	// so dispatch-time lookup errors are distinguishable from errors
	// raised inside the dispatched method body (spec.md §4.5 point 4).
	if len(ops) >= 2 {
		last := ops[len(ops)-1]
		prev := ops[len(ops)-2]
		if last.Call != nil && prev.Member != "" {
			g.checkIdent(prev.Member, target.Span())
			g.emit("safe_method_call(")
			g.genPostfixChain(target, ops[:len(ops)-2])
			g.emit(", " + luaQuote(prev.Member))
			for _, arg := range last.Call.Args {
				g.emit(", ")
				g.genExpr(arg, "")
			}
			g.emit(")")
			return
		}
	}

	op := ops[len(ops)-1]
	rest := ops[:len(ops)-1]
	switch {
	case op.Member != "":
		g.checkIdent(op.Member, target.Span())
		g.emit("safe_attr_access(")
		g.genPostfixChain(target, rest)
		g.emit(", " + luaQuote(op.Member) + ")")
	case op.Index != nil:
		g.emit("safe_attr_access(")
		g.genPostfixChain(target, rest)
		g.emit(", ")
		g.genExpr(op.Index, "")
		g.emit(")")
	case op.Call != nil:
		g.emit("safe_call_value(")
		g.genPostfixChain(target, rest)
		for _, arg := range op.Call.Args {
			g.emit(", ")
			g.genExpr(arg, "")
		}
		g.emit(")")
	}
}

func (g *Generator) genPrimary(p *lang.Primary) {
	switch {
	case p.Number != nil:
		g.emit(p.Number.Raw)
	case p.Str != nil:
		g.emit(luaQuote(p.Str.Value))
	case p.Bool != nil:
		g.emit(strconv.FormatBool(p.Bool.Value()))
	case p.Null != nil:
		g.emit("mlpy_null")
	case p.Arrow != nil:
		g.genArrow(p.Arrow)
	case p.Ident != "":
		g.checkIdent(p.Ident, p.Span())
		g.emit(luaIdent(p.Ident))
	case p.Group != nil:
		g.emit("(")
		g.genExpr(p.Group, "")
		g.emit(")")
	case p.Array != nil:
		g.emit("mlpy_array(")
		for i, el := range p.Array.Elements {
			if i > 0 {
				g.emit(", ")
			}
			g.genExpr(el, "")
		}
		g.emit(")")
	case p.Object != nil:
		g.genObjectLit(p.Object)
	}
}

func (g *Generator) genObjectLit(o *lang.ObjectLit) {
	g.emit("mlpy_object(")
	for i, entry := range o.Entries {
		if i > 0 {
			g.emit(", ")
		}
		key, err := entry.Key()
		if err != nil {
			g.fail(entry.Span(), "decoding object key: "+err.Error())
			key = ""
		}
		g.emit(luaQuote(key) + ", ")
		g.genExpr(entry.Value, "")
	}
	g.emit(")")
}

// genArrow emits a Lua closure literal. Per spec.md §4.5 point 7, the
// closure must capture its enclosing scope by reference: Lua's native
// closures already do this for upvalues resolved by name, so no
// by-value snapshot is taken here — the emitted function literal simply
// references the enclosing locals directly.
func (g *Generator) genArrow(a *lang.ArrowFunc) {
	for _, p := range a.Params {
		g.checkIdent(p, a.Span())
	}
	g.emit("(function(" + strings.Join(luaIdents(a.Params), ", ") + ")\n")
	if a.BodyBlock != nil {
		g.genStmts(a.BodyBlock.Stmts, "")
	} else {
		g.emit("  return ")
		g.genExpr(a.Body, "")
		g.emit("\n")
	}
	g.emit("end)")
}
