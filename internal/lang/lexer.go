// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package lang implements the ML grammar: lexer, AST, and a
// participle-driven recursive-descent parser. Keywords are matched as
// literal strings against the Ident token, the same technique the policy
// DSL parser uses rather than a separate keyword token class.
package lang

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// mlLexer defines the ML token types. Order matters: longer/prefix-sharing
// patterns must precede shorter ones (">=" before ">", "=>" before "=").
var mlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*|/\*[\s\S]*?\*/`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"|'(\\.|[^'\\])*'`},
	{Name: "Number", Pattern: `[0-9]+(\.[0-9]+)?([eE][+-]?[0-9]+)?`},
	{Name: "Arrow", Pattern: `=>`},
	{Name: "OpEq", Pattern: `==`},
	{Name: "OpNe", Pattern: `!=`},
	{Name: "OpGe", Pattern: `>=`},
	{Name: "OpLe", Pattern: `<=`},
	{Name: "OpAnd", Pattern: `&&`},
	{Name: "OpOr", Pattern: `\|\|`},
	{Name: "Assign", Pattern: `=`},
	{Name: "OpGt", Pattern: `>`},
	{Name: "OpLt", Pattern: `<`},
	{Name: "Bang", Pattern: `!`},
	{Name: "Plus", Pattern: `\+`},
	{Name: "Minus", Pattern: `-`},
	{Name: "Star", Pattern: `\*`},
	{Name: "Slash", Pattern: `/`},
	{Name: "Percent", Pattern: `%`},
	{Name: "Question", Pattern: `\?`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Dot", Pattern: `\.`},
	{Name: "Comma", Pattern: `,`},
	{Name: "Semi", Pattern: `;`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "LBrace", Pattern: `\{`},
	{Name: "RBrace", Pattern: `\}`},
	{Name: "LBracket", Pattern: `\[`},
	{Name: "RBracket", Pattern: `\]`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

// keywords are lexed as ordinary Ident tokens and recognized by literal
// match in the grammar, mirroring the policy DSL's approach. The
// validator's I1 check is syntactic only and does not reject a keyword
// used as a plain identifier.
var keywords = map[string]bool{
	"if": true, "elif": true, "else": true, "while": true, "for": true,
	"in": true, "break": true, "continue": true, "return": true,
	"try": true, "except": true, "finally": true, "throw": true,
	"import": true, "capability": true, "fn": true,
	"true": true, "false": true, "null": true,
}

// IsKeyword reports whether name is a reserved ML keyword.
func IsKeyword(name string) bool { return keywords[name] }

// DecodeString decodes an ML string literal's lexeme (including its
// surrounding quotes) honoring the escapes in spec.md §4.1:
// \n \t \" \' \\ \0 and hex \xNN.
func DecodeString(raw string) (string, error) {
	if len(raw) < 2 {
		return "", fmt.Errorf("unterminated string literal")
	}
	quote := raw[0]
	body := raw[1 : len(raw)-1]

	var b strings.Builder
	b.Grow(len(body))

	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("invalid escape at end of string")
		}
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '"':
			b.WriteByte('"')
		case '\'':
			b.WriteByte('\'')
		case '\\':
			b.WriteByte('\\')
		case '0':
			b.WriteByte(0)
		case 'x':
			if i+2 >= len(body) {
				return "", fmt.Errorf("invalid \\x escape: truncated")
			}
			hex := body[i+1 : i+3]
			n, err := strconv.ParseUint(hex, 16, 8)
			if err != nil {
				return "", fmt.Errorf("invalid \\x escape %q: %w", hex, err)
			}
			b.WriteByte(byte(n))
			i += 2
		default:
			return "", fmt.Errorf("invalid escape sequence \\%c", body[i])
		}
	}
	_ = quote
	return b.String(), nil
}

// NumberKind classifies a decoded numeric literal.
type NumberKind int

const (
	NumberInt NumberKind = iota
	NumberFloat
)

// ClassifyNumber determines whether a numeric lexeme is integral or
// floating per spec.md §4.1: a decimal point OR an exponent forces the
// floating variant (so "42e0" is a float).
func ClassifyNumber(raw string) NumberKind {
	if strings.ContainsAny(raw, ".eE") {
		return NumberFloat
	}
	return NumberInt
}

// ParseNumber decodes a numeric lexeme into either an int64 or a float64
// depending on ClassifyNumber.
func ParseNumber(raw string) (intVal int64, floatVal float64, kind NumberKind, err error) {
	kind = ClassifyNumber(raw)
	if kind == NumberInt {
		intVal, err = strconv.ParseInt(raw, 10, 64)
		return intVal, 0, kind, err
	}
	floatVal, err = strconv.ParseFloat(raw, 64)
	return 0, floatVal, kind, err
}
