// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

//go:build linux

package sandbox

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

func lookupUint(name string) (uint64, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// applyRlimits does not call Setrlimit itself: Go's os/exec has no
// pre-exec rlimit hook, and changing the host process's own limits is
// unsafe for concurrent runs. It records the limits on the command's
// environment as MLPY_RLIMIT_* variables, and the execute-worker
// subcommand applies them to its own process via SetOwnRlimits on
// startup (see cmd/mlpy/worker.go).
func applyRlimits(cmd *exec.Cmd, limits Limits) {
	cmd.Env = append(cmd.Env,
		envUint("MLPY_RLIMIT_AS", limits.MemoryBytes),
		envUint("MLPY_RLIMIT_CPU", limits.CPUSeconds),
		envUint("MLPY_RLIMIT_NOFILE", limits.MaxOpenFiles),
	)
}

func envUint(name string, v uint64) string {
	return name + "=" + uitoa(v)
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// SetOwnRlimits applies the MLPY_RLIMIT_* environment-communicated
// limits to the current process. Called by the execute-worker subcommand
// first thing in its run function, before any Lua state is created, so the limits
// bind the entire sandboxed process tree.
func SetOwnRlimits() error {
	if v, ok := lookupUint("MLPY_RLIMIT_AS"); ok {
		if err := syscall.Setrlimit(syscall.RLIMIT_AS, &syscall.Rlimit{Cur: v, Max: v}); err != nil {
			return err
		}
	}
	if v, ok := lookupUint("MLPY_RLIMIT_CPU"); ok {
		if err := syscall.Setrlimit(syscall.RLIMIT_CPU, &syscall.Rlimit{Cur: v, Max: v}); err != nil {
			return err
		}
	}
	if v, ok := lookupUint("MLPY_RLIMIT_NOFILE"); ok {
		if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &syscall.Rlimit{Cur: v, Max: v}); err != nil {
			return err
		}
	}
	return nil
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

// wasResourceLimitSignal reports whether the child was terminated by a
// signal typically raised when an rlimit is breached (SIGKILL from an
// OOM-adjacent condition, SIGXCPU from RLIMIT_CPU, SIGSEGV/SIGBUS are
// excluded since those indicate a program bug, not a limit breach).
func wasResourceLimitSignal(exitErr *exec.ExitError) bool {
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return false
	}
	switch status.Signal() {
	case syscall.SIGXCPU, syscall.SIGKILL:
		return true
	default:
		return false
	}
}
