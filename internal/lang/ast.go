// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package lang

import (
	"github.com/alecthomas/participle/v2/lexer"

	"mlpy/internal/diagnostics"
)

// Span converts a participle lexer.Position into the package-neutral
// diagnostics.Span. ByteEnd is conservatively set equal to ByteStart: the
// grammar does not track per-node end offsets (see parser.go), which is
// sufficient to satisfy the "byte_start <= byte_end" invariant spec.md §8
// requires without threading a second position through every rule.
func spanOf(p lexer.Position) diagnostics.Span {
	return diagnostics.Span{
		ByteStart: p.Offset,
		ByteEnd:   p.Offset,
		Line:      p.Line,
		Column:    p.Column,
	}
}

// Program is the root of an ML AST: a top-level sequence of statements.
type Program struct {
	Pos   lexer.Position `parser:""`
	Stmts []*Stmt        `parser:"@@*"`
}

func (p *Program) Span() diagnostics.Span { return spanOf(p.Pos) }

// Stmt is a one-of node over every statement variant spec.md §3 requires.
// Exactly one field is non-nil.
type Stmt struct {
	Pos lexer.Position `parser:""`

	If         *IfStmt         `parser:"  @@"`
	While      *WhileStmt      `parser:"| @@"`
	ForIn      *ForInStmt      `parser:"| @@"`
	FuncDef    *FuncDef        `parser:"| @@"`
	Break      *BreakStmt      `parser:"| @@"`
	Continue   *ContinueStmt   `parser:"| @@"`
	Return     *ReturnStmt     `parser:"| @@"`
	Throw      *ThrowStmt      `parser:"| @@"`
	Try        *TryStmt        `parser:"| @@"`
	Import     *ImportStmt     `parser:"| @@"`
	Capability *CapabilityStmt `parser:"| @@"`
	Block      *BlockStmt      `parser:"| @@"`
	ExprStmt   *ExprStmt       `parser:"| @@"`
}

func (s *Stmt) Span() diagnostics.Span { return spanOf(s.Pos) }

type BlockStmt struct {
	Pos   lexer.Position `parser:""`
	Stmts []*Stmt        `parser:"'{' @@* '}'"`
}

func (b *BlockStmt) Span() diagnostics.Span { return spanOf(b.Pos) }

type IfStmt struct {
	Pos   lexer.Position `parser:""`
	Cond  *Expr          `parser:"'if' '(' @@ ')'"`
	Then  *BlockStmt     `parser:"@@"`
	Elifs []*ElifClause  `parser:"@@*"`
	Else  *BlockStmt     `parser:"('else' @@)?"`
}

type ElifClause struct {
	Pos  lexer.Position `parser:""`
	Cond *Expr          `parser:"'elif' '(' @@ ')'"`
	Then *BlockStmt     `parser:"@@"`
}

type WhileStmt struct {
	Pos  lexer.Position `parser:""`
	Cond *Expr          `parser:"'while' '(' @@ ')'"`
	Body *BlockStmt     `parser:"@@"`
}

type ForInStmt struct {
	Pos      lexer.Position `parser:""`
	Var      string         `parser:"'for' '(' @Ident"`
	Iterable *Expr          `parser:"'in' @@ ')'"`
	Body     *BlockStmt     `parser:"@@"`
}

func (f *ForInStmt) Span() diagnostics.Span { return spanOf(f.Pos) }

type BreakStmt struct {
	Pos  lexer.Position `parser:""`
	Kw   string         `parser:"@'break'"`
	Semi string         `parser:"';'"`
}

type ContinueStmt struct {
	Pos  lexer.Position `parser:""`
	Kw   string         `parser:"@'continue'"`
	Semi string         `parser:"';'"`
}

type ReturnStmt struct {
	Pos   lexer.Position `parser:""`
	Value *Expr          `parser:"'return' @@?"`
	Semi  string         `parser:"';'"`
}

type ThrowStmt struct {
	Pos   lexer.Position `parser:""`
	Value *Expr          `parser:"'throw' @@"`
	Semi  string         `parser:"';'"`
}

// TryStmt models "try/except/finally" — both the except and finally
// clauses are optional but at least one must be present (enforced by the
// validator, not the grammar, matching I2-style invariants living outside
// the parser).
type TryStmt struct {
	Pos         lexer.Position `parser:""`
	Try         *BlockStmt     `parser:"'try' @@"`
	ExceptName  string         `parser:"('except' '(' @Ident ')'"`
	ExceptBody  *BlockStmt     `parser:"@@)?"`
	Finally     *BlockStmt     `parser:"('finally' @@)?"`
}

func (t *TryStmt) Span() diagnostics.Span { return spanOf(t.Pos) }

type ImportStmt struct {
	Pos  lexer.Position `parser:""`
	Path []string       `parser:"'import' @Ident (Dot @Ident)*"`
	Semi string         `parser:"';'"`
}

func (i *ImportStmt) Span() diagnostics.Span { return spanOf(i.Pos) }

type CapabilityStmt struct {
	Pos  lexer.Position `parser:""`
	Name string         `parser:"'capability' @Ident"`
	Body *BlockStmt     `parser:"@@"`
}

func (c *CapabilityStmt) Span() diagnostics.Span { return spanOf(c.Pos) }

type FuncDef struct {
	Pos    lexer.Position `parser:""`
	Name   string         `parser:"'fn' @Ident"`
	Params []string       `parser:"'(' (@Ident (',' @Ident)*)? ')'"`
	Body   *BlockStmt     `parser:"@@"`
}

func (f *FuncDef) Span() diagnostics.Span { return spanOf(f.Pos) }

type ExprStmt struct {
	Pos  lexer.Position `parser:""`
	Expr *Expr          `parser:"@@"`
	Semi string         `parser:"';'"`
}

func (e *ExprStmt) Span() diagnostics.Span { return spanOf(e.Pos) }

// --- Expressions, ordered by precedence (lowest first) ---

// Expr is the uniform expression entry point every statement-level rule
// references.
type Expr struct {
	Pos   lexer.Position `parser:""`
	Value *Assignment    `parser:"@@"`
}

func (e *Expr) Span() diagnostics.Span { return spanOf(e.Pos) }

// Assignment is right-associative: "a = b = c" assigns c, then b, then a.
// The grammar accepts any Ternary as the left operand; the validator (I2)
// restricts it to identifier/member/index targets.
type Assignment struct {
	Pos   lexer.Position `parser:""`
	Left  *Ternary       `parser:"@@"`
	Op    string         `parser:"( @Assign"`
	Right *Assignment    `parser:"@@ )?"`
}

type Ternary struct {
	Pos  lexer.Position `parser:""`
	Cond *LogicalOr     `parser:"@@"`
	Then *Expr          `parser:"( Question @@"`
	Else *Expr          `parser:"Colon @@ )?"`
}

type LogicalOr struct {
	Pos  lexer.Position `parser:""`
	Left *LogicalAnd    `parser:"@@"`
	Rest []*LogicalAnd  `parser:"(OpOr @@)*"`
}

type LogicalAnd struct {
	Pos  lexer.Position `parser:""`
	Left *Equality      `parser:"@@"`
	Rest []*Equality    `parser:"(OpAnd @@)*"`
}

// Equality is non-associative: at most one "==" or "!=" per level, per
// spec.md §4.1's "comparison non-associative" rule.
type Equality struct {
	Pos   lexer.Position `parser:""`
	Left  *Relational    `parser:"@@"`
	Op    string         `parser:"( @(OpEq | OpNe)"`
	Right *Relational    `parser:"@@ )?"`
}

type Relational struct {
	Pos   lexer.Position `parser:""`
	Left  *Additive      `parser:"@@"`
	Op    string         `parser:"( @(OpLe | OpGe | OpLt | OpGt)"`
	Right *Additive      `parser:"@@ )?"`
}

type AddTerm struct {
	Pos   lexer.Position  `parser:""`
	Op    string          `parser:"@(Plus | Minus)"`
	Right *Multiplicative `parser:"@@"`
}

type Additive struct {
	Pos  lexer.Position  `parser:""`
	Left *Multiplicative `parser:"@@"`
	Rest []*AddTerm      `parser:"@@*"`
}

type MulTerm struct {
	Pos   lexer.Position `parser:""`
	Op    string         `parser:"@(Star | Slash | Percent)"`
	Right *Unary         `parser:"@@"`
}

type Multiplicative struct {
	Pos  lexer.Position `parser:""`
	Left *Unary         `parser:"@@"`
	Rest []*MulTerm     `parser:"@@*"`
}

// Unary is prefix-recursive: "!!x" and "--x" both parse, left to the
// validator/codegen to accept or reject as nonsensical at a later stage.
type Unary struct {
	Pos     lexer.Position `parser:""`
	Neg     *Unary         `parser:"  Minus @@"`
	Not     *Unary         `parser:"| Bang @@"`
	Operand *Postfix       `parser:"| @@"`
}

// Postfix chains member access, index access, and call suffixes onto a
// Primary, e.g. "obj.items[0](x)".
type Postfix struct {
	Pos    lexer.Position `parser:""`
	Target *Primary       `parser:"@@"`
	Ops    []*PostfixOp   `parser:"@@*"`
}

func (p *Postfix) Span() diagnostics.Span { return spanOf(p.Pos) }

type PostfixOp struct {
	Pos    lexer.Position `parser:""`
	Member string         `parser:"(  Dot @Ident"`
	Index  *Expr          `parser:"| '[' @@ ']'"`
	Call   *CallArgs      `parser:"| @@ )"`
}

type CallArgs struct {
	Pos  lexer.Position `parser:""`
	Args []*Expr        `parser:"'(' (@@ (',' @@)*)? ')'"`
}

// Primary is the leaf level: literals, identifiers, arrow functions,
// parenthesized groups, array and object literals.
type Primary struct {
	Pos    lexer.Position `parser:""`
	Number *NumberLit     `parser:"  @@"`
	Str    *StringLit     `parser:"| @@"`
	Bool   *BoolLit       `parser:"| @@"`
	Null   *NullLit       `parser:"| @@"`
	Arrow  *ArrowFunc     `parser:"| @@"`
	Ident  string         `parser:"| @Ident"`
	Group  *Expr          `parser:"| '(' @@ ')'"`
	Array  *ArrayLit      `parser:"| @@"`
	Object *ObjectLit     `parser:"| @@"`
}

func (p *Primary) Span() diagnostics.Span { return spanOf(p.Pos) }

type NumberLit struct {
	Pos lexer.Position `parser:""`
	Raw string         `parser:"@Number"`
}

// StringLit carries the raw quoted lexeme; Value is filled by DecodeString
// during the post-parse normalization pass (see parser.go), matching the
// decision to treat escape decoding as ordinary AST-construction logic
// rather than a participle Capture hook.
type StringLit struct {
	Pos   lexer.Position `parser:""`
	Raw   string         `parser:"@String"`
	Value string         `parser:"" json:"-"`
}

type BoolLit struct {
	Pos lexer.Position `parser:""`
	Raw string         `parser:"@('true' | 'false')"`
}

func (b *BoolLit) Value() bool { return b.Raw == "true" }

type NullLit struct {
	Pos lexer.Position `parser:""`
	Kw  string         `parser:"@'null'"`
}

// ArrowFunc models "fn(params) => expr" and "fn(params) => { stmts }".
// BodyBlock is tried first: a braced body is always a block, never an
// object literal, by grammar position (see DESIGN.md's discussion of
// the block/object-literal ambiguity being resolved by position).
type ArrowFunc struct {
	Pos       lexer.Position `parser:""`
	Params    []string       `parser:"'fn' '(' (@Ident (',' @Ident)*)? ')' Arrow"`
	BodyBlock *BlockStmt     `parser:"(  @@"`
	Body      *Expr          `parser:"| @@ )"`
}

func (a *ArrowFunc) Span() diagnostics.Span { return spanOf(a.Pos) }

type ArrayLit struct {
	Pos      lexer.Position `parser:""`
	Elements []*Expr        `parser:"'[' (@@ (',' @@)*)? ']'"`
}

type ObjectLit struct {
	Pos     lexer.Position  `parser:""`
	Entries []*ObjectEntry  `parser:"'{' (@@ (',' @@)*)? '}'"`
}

type ObjectEntry struct {
	Pos       lexer.Position `parser:""`
	KeyIdent  string         `parser:"(  @Ident"`
	KeyString string         `parser:"| @String )"`
	Value     *Expr          `parser:"':' @@"`
}

// Key returns the entry's decoded key, whether written as a bare
// identifier or a quoted string.
func (e *ObjectEntry) Key() (string, error) {
	if e.KeyIdent != "" {
		return e.KeyIdent, nil
	}
	return DecodeString(e.KeyString)
}

func (e *ObjectEntry) Span() diagnostics.Span { return spanOf(e.Pos) }
