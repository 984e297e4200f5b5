// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package diagnostics defines the error/diagnostic model shared by every
// pipeline stage: lexical, parse, validation, security, codegen, cache,
// and sandbox failures all flow through the same Diagnostic shape so a
// caller (CLI, LSP, DAP) can render them uniformly.
package diagnostics

import (
	"fmt"

	"github.com/samber/oops"
)

// Severity grades a Diagnostic.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Kind identifies the stage and failure mode that produced a Diagnostic.
type Kind string

const (
	KindUnexpectedToken      Kind = "UnexpectedToken"
	KindUnterminatedString   Kind = "UnterminatedString"
	KindInvalidEscape        Kind = "InvalidEscape"
	KindInvalidNumber        Kind = "InvalidNumber"
	KindValidation           Kind = "ValidationError"
	KindDangerousIdentifier  Kind = "DangerousIdentifier"
	KindForbiddenName        Kind = "ForbiddenName"
	KindSecurityPattern      Kind = "SecurityPattern"
	KindTaint                Kind = "TaintViolation"
	KindCodeGenInternal      Kind = "CodeGenInternal"
	KindCache                Kind = "CacheError"
	KindSandboxSpawn         Kind = "SandboxSpawnError"
	KindResourceLimit        Kind = "ResourceLimitExceeded"
	KindCapabilityDenied     Kind = "CapabilityDenied"
	KindUserProgramRuntime   Kind = "UserProgramRuntime"
	KindCancelled            Kind = "Cancelled"
	KindInternal             Kind = "Internal"
)

// Span locates a Diagnostic or AST node in a Source Unit.
type Span struct {
	ByteStart int
	ByteEnd   int
	Line      int
	Column    int
}

// Diagnostic is the user-visible error/warning shape every stage emits.
// File/Line/Column/Kind/Message are required; Severity/Hint/RelatedSpans
// are optional per spec.md §7.
type Diagnostic struct {
	File         string
	Line         int
	Column       int
	Kind         Kind
	Message      string
	Severity     Severity
	Hint         string
	RelatedSpans []Span
}

func (d Diagnostic) Error() string {
	if d.Line == 0 && d.Column == 0 {
		return fmt.Sprintf("%s: %s", d.Kind, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Kind, d.Message)
}

// New constructs a Diagnostic from a Span plus kind/message, defaulting
// Severity to critical (the conservative default: callers downgrade
// explicitly when a stage's policy allows it).
func New(file string, span Span, kind Kind, message string) Diagnostic {
	return Diagnostic{
		File:     file,
		Line:     span.Line,
		Column:   span.Column,
		Kind:     kind,
		Message:  message,
		Severity: SeverityCritical,
	}
}

// FromInternal wraps an unexpected internal error (a pipeline-stage bug,
// per spec.md §7's "propagation policy") into a Diagnostic. When the source
// error is an oops error, its code prefixes the message and its stacktrace
// (the original throw site) is kept in Hint.
func FromInternal(file string, err error) Diagnostic {
	msg := err.Error()
	var hint string
	if oopsErr, ok := oops.AsOops(err); ok {
		msg = oopsErr.Error()
		if code := oopsErr.Code(); code != nil && code != "" {
			msg = fmt.Sprintf("[%v] %s", code, msg)
		}
		hint = oopsErr.Stacktrace()
	}
	return Diagnostic{
		File:     file,
		Kind:     KindInternal,
		Message:  msg,
		Severity: SeverityCritical,
		Hint:     hint,
	}
}

// Bag accumulates diagnostics in discovery order (spec.md §5's ordering
// guarantee: diagnostics accumulate in the order they are found).
type Bag struct {
	items []Diagnostic
}

func (b *Bag) Add(d Diagnostic) { b.items = append(b.items, d) }

func (b *Bag) AddAll(ds []Diagnostic) { b.items = append(b.items, ds...) }

func (b *Bag) Items() []Diagnostic { return b.items }

func (b *Bag) Empty() bool { return len(b.items) == 0 }

// HasCritical reports whether any accumulated diagnostic is critical.
func (b *Bag) HasCritical() bool {
	for _, d := range b.items {
		if d.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
