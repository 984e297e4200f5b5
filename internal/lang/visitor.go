// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package lang

// Node is satisfied by every AST struct pointer. It exists purely as a
// marker for Walk; callers type-switch on the concrete pointer type.
type Node interface{}

// Visit is called once per node in depth-first pre-order. Returning false
// stops Walk from descending into that node's children (the node itself
// has already been visited).
type Visit func(n Node) bool

// Walk performs a depth-first, pre-order traversal of an ML AST rooted at
// n, grounded on the same "small recursive visitor" idiom the policy DSL
// uses for its condition tree (validateConditionBlock/validateCondition),
// generalized into a single reusable walker over the full ML grammar.
func Walk(n Node, visit Visit) {
	if n == nil || isNilNode(n) {
		return
	}
	if !visit(n) {
		return
	}

	switch v := n.(type) {
	case *Program:
		for _, s := range v.Stmts {
			Walk(s, visit)
		}
	case *Stmt:
		switch {
		case v.If != nil:
			Walk(v.If, visit)
		case v.While != nil:
			Walk(v.While, visit)
		case v.ForIn != nil:
			Walk(v.ForIn, visit)
		case v.FuncDef != nil:
			Walk(v.FuncDef, visit)
		case v.Break != nil:
			Walk(v.Break, visit)
		case v.Continue != nil:
			Walk(v.Continue, visit)
		case v.Return != nil:
			Walk(v.Return, visit)
		case v.Throw != nil:
			Walk(v.Throw, visit)
		case v.Try != nil:
			Walk(v.Try, visit)
		case v.Import != nil:
			Walk(v.Import, visit)
		case v.Capability != nil:
			Walk(v.Capability, visit)
		case v.Block != nil:
			Walk(v.Block, visit)
		case v.ExprStmt != nil:
			Walk(v.ExprStmt, visit)
		}
	case *BlockStmt:
		for _, s := range v.Stmts {
			Walk(s, visit)
		}
	case *IfStmt:
		Walk(v.Cond, visit)
		Walk(v.Then, visit)
		for _, e := range v.Elifs {
			Walk(e, visit)
		}
		Walk(v.Else, visit)
	case *ElifClause:
		Walk(v.Cond, visit)
		Walk(v.Then, visit)
	case *WhileStmt:
		Walk(v.Cond, visit)
		Walk(v.Body, visit)
	case *ForInStmt:
		Walk(v.Iterable, visit)
		Walk(v.Body, visit)
	case *BreakStmt, *ContinueStmt:
		// leaves
	case *ReturnStmt:
		Walk(v.Value, visit)
	case *ThrowStmt:
		Walk(v.Value, visit)
	case *TryStmt:
		Walk(v.Try, visit)
		Walk(v.ExceptBody, visit)
		Walk(v.Finally, visit)
	case *ImportStmt:
		// leaf: Path is a plain []string
	case *CapabilityStmt:
		Walk(v.Body, visit)
	case *FuncDef:
		Walk(v.Body, visit)
	case *ExprStmt:
		Walk(v.Expr, visit)

	case *Expr:
		Walk(v.Value, visit)
	case *Assignment:
		Walk(v.Left, visit)
		Walk(v.Right, visit)
	case *Ternary:
		Walk(v.Cond, visit)
		Walk(v.Then, visit)
		Walk(v.Else, visit)
	case *LogicalOr:
		Walk(v.Left, visit)
		for _, r := range v.Rest {
			Walk(r, visit)
		}
	case *LogicalAnd:
		Walk(v.Left, visit)
		for _, r := range v.Rest {
			Walk(r, visit)
		}
	case *Equality:
		Walk(v.Left, visit)
		Walk(v.Right, visit)
	case *Relational:
		Walk(v.Left, visit)
		Walk(v.Right, visit)
	case *Additive:
		Walk(v.Left, visit)
		for _, r := range v.Rest {
			Walk(r, visit)
		}
	case *AddTerm:
		Walk(v.Right, visit)
	case *Multiplicative:
		Walk(v.Left, visit)
		for _, r := range v.Rest {
			Walk(r, visit)
		}
	case *MulTerm:
		Walk(v.Right, visit)
	case *Unary:
		switch {
		case v.Neg != nil:
			Walk(v.Neg, visit)
		case v.Not != nil:
			Walk(v.Not, visit)
		default:
			Walk(v.Operand, visit)
		}
	case *Postfix:
		Walk(v.Target, visit)
		for _, op := range v.Ops {
			Walk(op, visit)
		}
	case *PostfixOp:
		Walk(v.Index, visit)
		Walk(v.Call, visit)
	case *CallArgs:
		for _, a := range v.Args {
			Walk(a, visit)
		}
	case *Primary:
		switch {
		case v.Number != nil:
			Walk(v.Number, visit)
		case v.Str != nil:
			Walk(v.Str, visit)
		case v.Bool != nil:
			Walk(v.Bool, visit)
		case v.Null != nil:
			Walk(v.Null, visit)
		case v.Arrow != nil:
			Walk(v.Arrow, visit)
		case v.Group != nil:
			Walk(v.Group, visit)
		case v.Array != nil:
			Walk(v.Array, visit)
		case v.Object != nil:
			Walk(v.Object, visit)
		}
	case *ArrowFunc:
		if v.BodyBlock != nil {
			Walk(v.BodyBlock, visit)
		} else {
			Walk(v.Body, visit)
		}
	case *ArrayLit:
		for _, e := range v.Elements {
			Walk(e, visit)
		}
	case *ObjectLit:
		for _, e := range v.Entries {
			Walk(e, visit)
		}
	case *ObjectEntry:
		Walk(v.Value, visit)
	case *NumberLit, *StringLit, *BoolLit, *NullLit:
		// leaves
	}
}

// isNilNode reports whether n holds a typed nil pointer, which a plain
// "n == nil" check misses once n is boxed in the Node interface.
func isNilNode(n Node) bool {
	switch v := n.(type) {
	case *Program:
		return v == nil
	case *Stmt:
		return v == nil
	case *BlockStmt:
		return v == nil
	case *IfStmt:
		return v == nil
	case *ElifClause:
		return v == nil
	case *WhileStmt:
		return v == nil
	case *ForInStmt:
		return v == nil
	case *BreakStmt:
		return v == nil
	case *ContinueStmt:
		return v == nil
	case *ReturnStmt:
		return v == nil
	case *ThrowStmt:
		return v == nil
	case *TryStmt:
		return v == nil
	case *ImportStmt:
		return v == nil
	case *CapabilityStmt:
		return v == nil
	case *FuncDef:
		return v == nil
	case *ExprStmt:
		return v == nil
	case *Expr:
		return v == nil
	case *Assignment:
		return v == nil
	case *Ternary:
		return v == nil
	case *LogicalOr:
		return v == nil
	case *LogicalAnd:
		return v == nil
	case *Equality:
		return v == nil
	case *Relational:
		return v == nil
	case *Additive:
		return v == nil
	case *AddTerm:
		return v == nil
	case *Multiplicative:
		return v == nil
	case *MulTerm:
		return v == nil
	case *Unary:
		return v == nil
	case *Postfix:
		return v == nil
	case *PostfixOp:
		return v == nil
	case *CallArgs:
		return v == nil
	case *Primary:
		return v == nil
	case *ArrowFunc:
		return v == nil
	case *ArrayLit:
		return v == nil
	case *ObjectLit:
		return v == nil
	case *ObjectEntry:
		return v == nil
	case *NumberLit:
		return v == nil
	case *StringLit:
		return v == nil
	case *BoolLit:
		return v == nil
	case *NullLit:
		return v == nil
	default:
		return false
	}
}
