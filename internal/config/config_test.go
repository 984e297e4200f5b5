// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlpy/internal/config"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.False(t, cfg.Strict)
	assert.Equal(t, 10, cfg.SandboxTimeoutSeconds)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("MLPY_STRICT", "true")
	t.Setenv("MLPY_CACHE_DIR", "/tmp/custom-cache")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "/tmp/custom-cache", cfg.CacheDir)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	_, err := config.Load("/nonexistent/mlpy.yaml", nil)
	require.NoError(t, err)
}

func TestLoad_FileOverridesDefaultsButEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/mlpy.yaml"
	require.NoError(t, os.WriteFile(path, []byte("strict: true\ncache_dir: /from/file\n"), 0o644))

	t.Setenv("MLPY_CACHE_DIR", "/from/env")
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "/from/env", cfg.CacheDir)
}
