// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package pipeline wires the compiler stages together into the state
// machine spec.md §4.5/§8 describes: Initial -> Parsed -> Validated ->
// Analyzed(shallow) -> Analyzed(deep) -> Generated -> Cached, with any
// stage able to transition to the terminal Failed state. Grounded on the
// teacher's general "each stage returns a Result, no silent catch-all"
// discipline (see pkg/errutil and every internal/plugin adapter's
// explicit error returns), generalized here into one named state value
// per spec.md §7's propagation policy ("the pipeline wrapper must never
// collapse an exception into an empty-error success").
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.opentelemetry.io/otel"

	"mlpy/internal/codegen"
	"mlpy/internal/diagnostics"
	"mlpy/internal/lang"
	"mlpy/internal/registry"
	"mlpy/internal/security"
	"mlpy/internal/validator"
)

// State names every stage a compilation passes through, in order.
type State string

const (
	StateInitial   State = "Initial"
	StateParsed    State = "Parsed"
	StateValidated State = "Validated"
	StateShallow   State = "Analyzed(shallow)"
	StateDeep      State = "Analyzed(deep)"
	StateGenerated State = "Generated"
	StateCached    State = "Cached"
	StateFailed    State = "Failed"
)

// Artifact is the record produced by a successful compilation, per
// spec.md's GLOSSARY: emitted source + source map + required
// capabilities + diagnostics accumulated along the way (warnings survive
// a successful compile; only a critical diagnostic aborts it).
type Artifact struct {
	File                 string
	SourceHash           string
	CompilerVersion      string
	EmittedSource        string
	SourceMap            *codegen.SourceMap
	RequiredCapabilities []string
	Diagnostics          diagnostics.Bag
}

// Result is the pipeline's outward-facing Result-like value: exactly one
// of Artifact or a non-empty diagnostic Bag is meaningful, mirroring
// spec.md §8's "parse(S) either returns an AST or at least one
// diagnostic, never both empty" invariant generalized to the whole
// pipeline.
type Result struct {
	State    State
	Artifact *Artifact
}

var tracer = otel.Tracer("mlpy/pipeline")

// Compile runs file/source through every stage up to and including code
// generation. It does not consult or populate the cache — that is the
// caller's responsibility (see internal/cache), keeping "is this
// compilation pure" (yes) cleanly separated from "do we need to redo it"
// (a cache concern, spec.md §4.8).
func Compile(ctx context.Context, file, source, compilerVersion string, reg *registry.Registry) Result {
	ctx, span := tracer.Start(ctx, "pipeline.Compile")
	defer span.End()

	var bag diagnostics.Bag

	if err := ctx.Err(); err != nil {
		bag.Add(diagnostics.Diagnostic{
			File:     file,
			Kind:     diagnostics.KindCancelled,
			Message:  "compilation cancelled before parsing began",
			Severity: diagnostics.SeverityCritical,
		})
		return Result{State: StateFailed, Artifact: &Artifact{File: file, Diagnostics: bag}}
	}

	prog, parseDiags := parseStage(ctx, file, source)
	bag.AddAll(parseDiags)
	if prog == nil {
		return Result{State: StateFailed, Artifact: &Artifact{File: file, Diagnostics: bag}}
	}

	if diags := validateStage(ctx, file, prog); len(diags) > 0 {
		bag.AddAll(diags)
		if bag.HasCritical() {
			return Result{State: StateFailed, Artifact: &Artifact{File: file, Diagnostics: bag}}
		}
	}

	shallowDiags := shallowStage(ctx, file, prog)
	bag.AddAll(shallowDiags)
	if bag.HasCritical() {
		return Result{State: StateFailed, Artifact: &Artifact{File: file, Diagnostics: bag}}
	}

	deepDiags, requiredCaps := deepStage(ctx, file, prog, reg)
	bag.AddAll(deepDiags)
	if bag.HasCritical() {
		return Result{State: StateFailed, Artifact: &Artifact{File: file, Diagnostics: bag}}
	}

	emitted, sm, genDiags := generateStage(ctx, file, prog)
	bag.AddAll(genDiags)
	if bag.HasCritical() {
		return Result{State: StateFailed, Artifact: &Artifact{File: file, Diagnostics: bag}}
	}

	artifact := &Artifact{
		File:                 file,
		SourceHash:           HashSource(source),
		CompilerVersion:      compilerVersion,
		EmittedSource:        emitted,
		SourceMap:            sm,
		RequiredCapabilities: requiredCaps,
		Diagnostics:          bag,
	}
	return Result{State: StateGenerated, Artifact: artifact}
}

func parseStage(ctx context.Context, file, source string) (*lang.Program, []diagnostics.Diagnostic) {
	_, span := tracer.Start(ctx, "pipeline.parse")
	defer span.End()
	return lang.Parse(file, source)
}

func validateStage(ctx context.Context, file string, prog *lang.Program) []diagnostics.Diagnostic {
	_, span := tracer.Start(ctx, "pipeline.validate")
	defer span.End()
	return validator.Validate(file, prog)
}

func shallowStage(ctx context.Context, file string, prog *lang.Program) []diagnostics.Diagnostic {
	_, span := tracer.Start(ctx, "pipeline.security.shallow")
	defer span.End()
	return security.AnalyzeShallow(file, prog)
}

// deepStage runs pattern detection, taint analysis, and capability
// inference. Pattern-rule hits above warning severity and taint results
// both surface as diagnostics; a taint finding is reported at critical
// severity only in strict-equivalent contexts — here it is always
// reported, and it is the caller's choice (via Bag.HasCritical after
// filtering, or a future --strict flag threading through) whether to
// abort on it. For this pipeline, taint findings are warnings: they flag
// a capability-requiring sink reachable from untrusted input, which is
// expected and often intentional (e.g. a program whose entire purpose is
// to read user input and act on it under a granted capability).
func deepStage(ctx context.Context, file string, prog *lang.Program, reg *registry.Registry) ([]diagnostics.Diagnostic, []string) {
	_, span := tracer.Start(ctx, "pipeline.security.deep")
	defer span.End()

	var diags []diagnostics.Diagnostic
	for _, issue := range security.DetectPatterns(file, prog) {
		diags = append(diags, diagnostics.Diagnostic{
			File:     file,
			Line:     issue.Span.Line,
			Column:   issue.Span.Column,
			Kind:     diagnostics.KindSecurityPattern,
			Message:  issue.Message,
			Severity: issue.Severity,
		})
	}
	for _, t := range security.AnalyzeTaint(file, prog, reg) {
		diags = append(diags, diagnostics.Diagnostic{
			File:     file,
			Line:     t.Span.Line,
			Column:   t.Span.Column,
			Kind:     diagnostics.KindTaint,
			Message:  t.Message,
			Severity: diagnostics.SeverityWarning,
		})
	}
	return diags, security.InferCapabilities(prog, reg)
}

func generateStage(ctx context.Context, file string, prog *lang.Program) (string, *codegen.SourceMap, []diagnostics.Diagnostic) {
	_, span := tracer.Start(ctx, "pipeline.generate")
	defer span.End()
	return codegen.Generate(file, prog)
}

// HashSource computes the source_hash spec.md §4.8 keys cache entries by.
// Exported so callers that need to probe the cache without first running
// Compile (e.g. the CLI's transpile/run commands) can derive the same key.
func HashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
