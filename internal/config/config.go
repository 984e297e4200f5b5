// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package config loads mlpy's configuration from, in ascending priority
// order: built-in defaults, an optional mlpy.yaml file, MLPY_* environment
// variables, and CLI flags. Built with koanf/v2, the layered
// configuration library SPEC_FULL.md's DOMAIN STACK table assigns to this
// concern; the teacher repo itself reads ad hoc os.Getenv calls in
// cmd/holomush/main.go; this package generalizes that into the layered
// form a compiler CLI with many subcommands and flags needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config is mlpy's resolved configuration, per spec.md §6's CLI/env
// surface (MLPY_CACHE_DIR, MLPY_STRICT) plus the additional knobs a
// complete implementation needs (default sandbox limits, observability
// bind address).
type Config struct {
	CacheDir        string `koanf:"cache_dir"`
	Strict          bool   `koanf:"strict"`
	CompilerVersion string `koanf:"compiler_version"`

	SandboxTimeoutSeconds int    `koanf:"sandbox.timeout_seconds"`
	SandboxMemoryMB       int    `koanf:"sandbox.memory_mb"`
	SandboxAllowNetwork   bool   `koanf:"sandbox.allow_network"`

	ObservabilityAddr string `koanf:"observability.addr"`
}

// Defaults returns mlpy's built-in configuration defaults, the lowest
// priority layer.
func Defaults() Config {
	return Config{
		CacheDir:              defaultCacheDir(),
		Strict:                false,
		CompilerVersion:       "0.1.0",
		SandboxTimeoutSeconds: 10,
		SandboxMemoryMB:       256,
		SandboxAllowNetwork:   false,
		ObservabilityAddr:     "127.0.0.1:9090",
	}
}

// Load resolves a Config from defaults, an optional file at configPath
// (skipped silently if it doesn't exist — an absent mlpy.yaml is not an
// error), MLPY_* environment variables, and flags, in that priority
// order (each layer overrides the previous).
func Load(configPath string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	defaults := Defaults()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			if !isNotExist(err) {
				return Config{}, fmt.Errorf("config: load %q: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("MLPY_", ".", envTransform), nil); err != nil {
		return Config{}, fmt.Errorf("config: load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("config: load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// envTransform translates MLPY_CACHE_DIR -> cache_dir, MLPY_STRICT ->
// strict, MLPY_SANDBOX_TIMEOUT_SECONDS -> sandbox.timeout_seconds, so
// nested config keys can still be set from a flat environment namespace.
func envTransform(s string) string {
	s = strings.TrimPrefix(s, "MLPY_")
	s = strings.ToLower(s)
	switch s {
	case "sandbox_timeout_seconds":
		return "sandbox.timeout_seconds"
	case "sandbox_memory_mb":
		return "sandbox.memory_mb"
	case "sandbox_allow_network":
		return "sandbox.allow_network"
	case "observability_addr":
		return "observability.addr"
	default:
		return s
	}
}

func isNotExist(err error) bool {
	return strings.Contains(err.Error(), "no such file") || strings.Contains(err.Error(), "cannot find the file")
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "mlpy")
	}
	return ".mlpy-cache"
}
