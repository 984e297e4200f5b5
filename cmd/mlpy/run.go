// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mlpy/internal/capability"
	"mlpy/internal/pipeline"
	"mlpy/internal/sandbox"
)

// runConfig holds flags for the run subcommand.
type runConfig struct {
	timeoutSeconds int
	memoryMB       int
	caps           []string
	noNetwork      bool
	allowFS        []string
	capFile        string
}

// NewRunCmd creates the run subcommand: spec.md §6's `run <file>`,
// compiling (cache-aware) then sandbox-executing the result. Exit code
// is the child's exit code on clean execution, else >128 for
// sandbox-induced termination.
func NewRunCmd() *cobra.Command {
	cfg := &runConfig{}

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Compile and sandbox-execute an ML source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.timeoutSeconds, "timeout", 0, "wall-clock timeout in seconds (default: sandbox default)")
	cmd.Flags().IntVar(&cfg.memoryMB, "memory", 0, "memory limit in MB (default: sandbox default)")
	cmd.Flags().StringArrayVar(&cfg.caps, "cap", nil, "grant NAME=PATTERN:ACTIONS (repeatable)")
	cmd.Flags().BoolVar(&cfg.noNetwork, "no-network", false, "deny all network access regardless of config")
	cmd.Flags().StringArrayVar(&cfg.allowFS, "allow-fs", nil, "glob pattern to whitelist for filesystem access (repeatable)")
	cmd.Flags().StringVar(&cfg.capFile, "cap-file", "", "YAML capability manifest file: a top-level grants list of {name, resource, actions, optional expire_at}")

	return cmd
}

func runRun(cmd *cobra.Command, file string, cfg *runConfig) error {
	mcfg, err := loadConfig(cmd)
	if err != nil {
		return exitErrorf(3, "%w", err)
	}

	source, modTime, err := readSourceFile(file)
	if err != nil {
		return exitErrorf(2, "mlpy: read %q: %w", file, err)
	}

	reg, err := buildRegistry()
	if err != nil {
		return exitErrorf(1, "%w", err)
	}

	c, err := openCache(mcfg, nil)
	if err != nil {
		return exitErrorf(2, "%w", err)
	}

	sourceHash := pipeline.HashSource(source)
	artifact, err := c.GetOrCompile(cmd.Context(), file, source, sourceHash, modTime, false, reg)
	if err != nil {
		return exitErrorf(1, "%w", err)
	}
	if artifact.Diagnostics.HasCritical() {
		printDiagnostics(cmd, artifact.Diagnostics.Items())
		return exitErrorf(1, "mlpy: %q failed to compile", file)
	}

	luaPath := file + ".lua"
	if err := os.WriteFile(luaPath, []byte(artifact.EmittedSource), 0o644); err != nil {
		return exitErrorf(2, "mlpy: write %q: %w", luaPath, err)
	}
	defer os.Remove(luaPath)

	manifestPath, cleanup, err := writeCapManifest(cfg, artifact.RequiredCapabilities)
	if err != nil {
		return exitErrorf(3, "%w", err)
	}
	defer cleanup()

	limits := sandbox.DefaultLimits()
	if cfg.timeoutSeconds > 0 {
		limits.WallClock = time.Duration(cfg.timeoutSeconds) * time.Second
	}
	if cfg.memoryMB > 0 {
		limits.MemoryBytes = uint64(cfg.memoryMB) * 1024 * 1024
	}
	if cfg.noNetwork {
		limits.AllowNetwork = false
		limits.NetworkAllow = nil
	} else if mcfg.SandboxAllowNetwork {
		limits.AllowNetwork = true
	}
	limits.FSWhitelist = append(limits.FSWhitelist, cfg.allowFS...)

	exec := sandbox.NewExecutor([]string{"execute-worker"}, nil)
	result, err := exec.Run(cmd.Context(), luaPath, limits, manifestPath)
	if err != nil {
		return exitErrorf(2, "mlpy: sandbox: %w", err)
	}

	if result.OutputTruncated {
		cmd.PrintErrln("mlpy: warning: program output was truncated at the sandbox output limit")
	}
	cmd.Print(result.Output)

	if !result.Success {
		if result.Error != "" {
			cmd.PrintErrln(result.Error)
		}
		exitCode := result.ExitCode
		if exitCode <= 0 {
			exitCode = 137
		}
		return exitErrorf(exitCode, "mlpy: %q exited with code %d", file, exitCode)
	}
	return nil
}

// writeCapManifest turns --cap and --cap-file into the single YAML
// manifest file internal/capability.LoadManifest reads, so the re-exec'd
// worker process only ever needs one --cap-manifest argument regardless
// of how many --cap flags were given on the command line. Both sources
// are decoded into capability.Manifest and merged as Go values rather
// than concatenated as text, so a --cap-file that itself starts with its
// own "grants:" key can never shadow the --cap flags.
func writeCapManifest(cfg *runConfig, requiredCaps []string) (string, func(), error) {
	noop := func() {}
	if len(cfg.caps) == 0 && cfg.capFile == "" {
		if len(requiredCaps) > 0 {
			return "", noop, fmt.Errorf("mlpy: program requires capabilities %v but no --cap or --cap-file was given", requiredCaps)
		}
		return "", noop, nil
	}

	var manifest capability.Manifest
	for _, spec := range cfg.caps {
		name, pattern, actions, err := parseCapFlag(spec)
		if err != nil {
			return "", noop, err
		}
		manifest.Grants = append(manifest.Grants, capability.GrantSpec{
			Name:     name,
			Resource: pattern,
			Actions:  actions,
		})
	}
	if cfg.capFile != "" {
		extra, err := os.ReadFile(cfg.capFile)
		if err != nil {
			return "", noop, fmt.Errorf("mlpy: read --cap-file %q: %w", cfg.capFile, err)
		}
		var fromFile capability.Manifest
		if err := yaml.Unmarshal(extra, &fromFile); err != nil {
			return "", noop, fmt.Errorf("mlpy: parse --cap-file %q: %w", cfg.capFile, err)
		}
		manifest.Grants = append(manifest.Grants, fromFile.Grants...)
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", noop, fmt.Errorf("mlpy: marshal capability manifest: %w", err)
	}

	tmp, err := os.CreateTemp("", "mlpy-cap-*.yaml")
	if err != nil {
		return "", noop, fmt.Errorf("mlpy: create capability manifest: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", noop, fmt.Errorf("mlpy: write capability manifest: %w", err)
	}
	tmp.Close()
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

// parseCapFlag splits a "--cap NAME=PATTERN:ACTIONS" flag value into its
// three parts, per spec.md §6's documented grammar for the flag.
func parseCapFlag(spec string) (name, pattern string, actions []string, err error) {
	nameRest := strings.SplitN(spec, "=", 2)
	if len(nameRest) != 2 {
		return "", "", nil, fmt.Errorf("mlpy: invalid --cap %q: expected NAME=PATTERN:ACTIONS", spec)
	}
	patternActions := strings.SplitN(nameRest[1], ":", 2)
	if len(patternActions) != 2 {
		return "", "", nil, fmt.Errorf("mlpy: invalid --cap %q: expected NAME=PATTERN:ACTIONS", spec)
	}
	return nameRest[0], patternActions[0], strings.Split(patternActions[1], ","), nil
}
