// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package sandbox executes emitted Lua source in a re-exec'd subprocess
// under resource limits, per spec.md §4.9. The host binary re-execs
// itself as a hidden "execute-worker" subcommand (see cmd/mlpy/worker.go) rather
// than launching a separate lua interpreter binary, so the sandboxed
// process still links the same luaruntime/registry/capability packages
// that authored the emitted code's safe-call contract.
//
// Grounded on the teacher's internal/plugin/goplugin Host (context-scoped
// subprocess lifecycle, Kill-on-teardown, DefaultEventTimeout-style
// wall-clock bound) and on internal/world/events.go's retry.Do +
// retry.RetryableError pattern for the one class of retry spec.md §4.9
// allows: transient host process-spawn failure, never a resource-limit
// breach or a program exception.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gobwas/glob"
	"github.com/sethvargo/go-retry"
)

// Metrics is the subset of internal/observability.Metrics the sandbox
// records against.
type Metrics interface {
	RecordSandboxRun(outcome string, durationSeconds float64)
	RecordSandboxLimitBreach(limit string)
}

// NoopMetrics discards every recording call.
type NoopMetrics struct{}

func (NoopMetrics) RecordSandboxRun(string, float64)    {}
func (NoopMetrics) RecordSandboxLimitBreach(string)     {}

// Limits bounds a sandboxed run, per spec.md §4.9.
type Limits struct {
	WallClock     time.Duration
	MemoryBytes   uint64
	CPUSeconds    uint64
	MaxOpenFiles  uint64
	MaxOutputLen  int
	FSWhitelist   []string // glob patterns; writes restricted to these unless TempDirOnly
	TempDirOnly   bool
	AllowNetwork  bool
	NetworkAllow  []string // glob patterns checked against "host:port" when AllowNetwork is true; empty allows every target
}

// DefaultLimits mirrors the CLI's documented defaults (spec.md §6).
func DefaultLimits() Limits {
	return Limits{
		WallClock:    10 * time.Second,
		MemoryBytes:  256 * 1024 * 1024,
		CPUSeconds:   10,
		MaxOpenFiles: 64,
		MaxOutputLen: 1 << 20,
	}
}

// Result is the SandboxResult of spec.md §4.9.
type Result struct {
	Success              bool
	Output               string
	OutputTruncated      bool
	Error                string
	ExecutionTimeMS      int64
	MemoryPeakBytes      uint64
	CapabilityViolations []string
	ExitCode             int
}

// Executor runs a re-exec'd worker subprocess against emitted Lua source.
type Executor struct {
	// WorkerArgs are prepended to the subprocess command line before the
	// worker-specific flags; cmd/mlpy wires this to []string{"execute-worker"}
	// so the sandboxed process is "mlpy execute-worker <emitted-file>".
	WorkerArgs []string
	Metrics    Metrics
}

// NewExecutor constructs an Executor. metrics may be nil.
func NewExecutor(workerArgs []string, metrics Metrics) *Executor {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Executor{WorkerArgs: workerArgs, Metrics: metrics}
}

// Run executes emittedFile (already-written Lua source on disk) in a
// subprocess bounded by limits. Only host process-spawn errors (the
// exec.Command.Start failure class, e.g. a transient "resource
// temporarily unavailable" from fork) are retried; resource-limit
// breaches and in-program exceptions are never retried, matching
// spec.md §4.9.
func (e *Executor) Run(ctx context.Context, emittedFile string, limits Limits, capManifest string) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, limits.WallClock)
	defer cancel()

	start := time.Now()
	var res Result
	var runErr error

	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		r, spawnErr := e.runOnce(runCtx, emittedFile, limits, capManifest)
		if spawnErr != nil {
			if isTransientSpawnError(spawnErr) {
				return retry.RetryableError(spawnErr)
			}
			runErr = spawnErr
			return spawnErr
		}
		res = r
		return nil
	})
	elapsed := time.Since(start)
	res.ExecutionTimeMS = elapsed.Milliseconds()

	if err != nil && runErr == nil {
		runErr = err
	}

	outcome := "success"
	switch {
	case runErr != nil:
		outcome = "spawn_error"
	case !res.Success:
		outcome = "program_error"
	}
	e.Metrics.RecordSandboxRun(outcome, elapsed.Seconds())

	if runErr != nil {
		return Result{Success: false, Error: runErr.Error(), ExecutionTimeMS: elapsed.Milliseconds()}, runErr
	}
	return res, nil
}

func isTransientSpawnError(err error) bool {
	// Start reports a failed fork/exec as an *os.PathError wrapping the
	// errno. A missing binary is not transient; EAGAIN/ENOMEM from fork
	// and "text file busy" are treated as transient spawn conditions
	// worth retrying.
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.ENOMEM) || errors.Is(err, syscall.ETXTBSY)
}

func (e *Executor) runOnce(ctx context.Context, emittedFile string, limits Limits, capManifest string) (Result, error) {
	self, err := os.Executable()
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: resolve own executable: %w", err)
	}

	args := append(append([]string{}, e.WorkerArgs...), emittedFile)
	if capManifest != "" {
		args = append(args, "--cap-manifest", capManifest)
	}

	cmd := exec.CommandContext(ctx, self, args...)
	cmd.Dir = workDir(limits)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = sandboxEnv(limits)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &stdout, max: limits.MaxOutputLen}
	cmd.Stderr = &limitedWriter{buf: &stderr, max: limits.MaxOutputLen}

	applyRlimits(cmd, limits)

	startErr := cmd.Start()
	if startErr != nil {
		return Result{}, startErr
	}

	waitErr := cmd.Wait()

	res := Result{
		Output:          stdout.String(),
		OutputTruncated: stdout.Len() >= limits.MaxOutputLen,
	}

	if ctx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		res.Success = false
		res.Error = "sandbox: wall-clock limit exceeded"
		res.ExitCode = 137
		e.Metrics.RecordSandboxLimitBreach("wall_clock")
		return res, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Success = false
			res.Error = stderr.String()
			res.ExitCode = exitErr.ExitCode()
			if wasResourceLimitSignal(exitErr) {
				e.Metrics.RecordSandboxLimitBreach("resource")
			}
			return res, nil
		}
		// cmd.Wait failing for a reason other than a non-zero exit is a
		// host-side problem (e.g. the process vanished), not a program
		// exception, and is not retried here since Start already
		// succeeded — only spawn failures at Start are retryable.
		return Result{}, fmt.Errorf("sandbox: wait: %w", waitErr)
	}

	res.Success = true
	res.ExitCode = 0
	return res, nil
}

func workDir(limits Limits) string {
	if limits.TempDirOnly {
		dir, err := os.MkdirTemp("", "mlpy-sandbox-")
		if err == nil {
			return dir
		}
	}
	return ""
}

func sandboxEnv(limits Limits) []string {
	env := []string{"PATH=/usr/bin:/bin"}
	if !limits.AllowNetwork {
		env = append(env, "MLPY_NO_NETWORK=1")
	}
	return env
}

// AllowedFSPath reports whether path matches one of the whitelist
// globs, per spec.md §4.9's filesystem-whitelist requirement.
func AllowedFSPath(limits Limits, path string) bool {
	if limits.TempDirOnly {
		return filepath.IsAbs(path) && isUnderTempDir(path)
	}
	for _, pattern := range limits.FSWhitelist {
		g, err := glob.Compile(pattern)
		if err != nil {
			continue
		}
		if g.Match(path) {
			return true
		}
	}
	return false
}

func isUnderTempDir(path string) bool {
	tmp := os.TempDir()
	rel, err := filepath.Rel(tmp, path)
	return err == nil && rel != ".." && !filepath.IsAbs(rel) && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}

// AllowedNetworkTarget reports whether a "host:port" target is permitted
// under limits, implementing the deny-by-default network policy: network
// access is refused unless AllowNetwork is set, in which case the
// allowlist (if non-empty) further restricts which targets are reachable.
func AllowedNetworkTarget(limits Limits, hostport string) bool {
	if !limits.AllowNetwork {
		return false
	}
	if len(limits.NetworkAllow) == 0 {
		return true
	}
	for _, pattern := range limits.NetworkAllow {
		g, err := glob.Compile(pattern)
		if err != nil {
			continue
		}
		if g.Match(hostport) {
			return true
		}
	}
	return false
}

type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.max <= 0 || w.buf.Len() < w.max {
		remaining := w.max - w.buf.Len()
		if w.max <= 0 || remaining >= len(p) {
			return w.buf.Write(p)
		}
		w.buf.Write(p[:remaining])
	}
	// Output capped: report success to the child without growing the
	// buffer further, per spec.md §4.9's maximum-output-length limit.
	return len(p), nil
}
