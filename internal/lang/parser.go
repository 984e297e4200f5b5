// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package lang

import (
	"errors"
	"sync"

	"github.com/alecthomas/participle/v2"

	"mlpy/internal/diagnostics"
)

var (
	buildOnce  sync.Once
	mlParser   *participle.Parser[Program]
	buildError error
)

// parser lazily builds the singleton participle parser, mirroring the
// policy DSL's NewParser() pattern: grammar construction is expensive and
// the grammar itself never varies across calls.
func parser() (*participle.Parser[Program], error) {
	buildOnce.Do(func() {
		mlParser, buildError = participle.Build[Program](
			participle.Lexer(mlLexer),
			participle.UseLookahead(participle.MaxLookahead),
			participle.Elide("Whitespace", "Comment"),
		)
	})
	return mlParser, buildError
}

// Parse compiles ML source text into a Program AST. It never returns both
// a nil Program and an empty diagnostics slice: a parse failure always
// yields at least one Diagnostic, and a successful parse always yields a
// non-nil Program with an empty diagnostics slice.
func Parse(file, source string) (*Program, []diagnostics.Diagnostic) {
	p, err := parser()
	if err != nil {
		return nil, []diagnostics.Diagnostic{diagnostics.FromInternal(file, err)}
	}

	prog, err := p.ParseString(file, source)
	if err != nil {
		return nil, []diagnostics.Diagnostic{classifyParseError(file, err)}
	}

	if diags := decodeStringLiterals(file, prog); len(diags) > 0 {
		return nil, diags
	}

	return prog, nil
}

// classifyParseError maps a participle error into the failure modes
// spec.md §4.1 names explicitly: UnexpectedToken covers the general parse
// failure (mismatched token, premature EOF, unbalanced delimiter). The
// String token pattern itself requires a closing quote, so a truncated
// string literal surfaces as an ordinary lexer/parse UnexpectedToken
// rather than a distinct category.
func classifyParseError(file string, err error) diagnostics.Diagnostic {
	var perr participle.Error
	if !errors.As(err, &perr) {
		return diagnostics.Diagnostic{
			File:     file,
			Kind:     diagnostics.KindUnexpectedToken,
			Message:  err.Error(),
			Severity: diagnostics.SeverityCritical,
		}
	}

	pos := perr.Position()
	return diagnostics.Diagnostic{
		File:     file,
		Line:     pos.Line,
		Column:   pos.Column,
		Kind:     diagnostics.KindUnexpectedToken,
		Message:  perr.Message(),
		Severity: diagnostics.SeverityCritical,
	}
}

// decodeStringLiterals walks every StringLit in the tree and fills its
// decoded Value, converting an invalid-escape failure into an
// InvalidEscape Diagnostic rather than panicking deep inside codegen.
func decodeStringLiterals(file string, prog *Program) []diagnostics.Diagnostic {
	var diags []diagnostics.Diagnostic
	Walk(prog, func(n Node) bool {
		s, ok := n.(*StringLit)
		if !ok {
			return true
		}
		decoded, err := DecodeString(s.Raw)
		if err != nil {
			diags = append(diags, diagnostics.Diagnostic{
				File:     file,
				Line:     s.Pos.Line,
				Column:   s.Pos.Column,
				Kind:     diagnostics.KindInvalidEscape,
				Message:  err.Error(),
				Severity: diagnostics.SeverityCritical,
			})
			return true
		}
		s.Value = decoded
		return true
	})
	return diags
}
