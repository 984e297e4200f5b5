// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package cache_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mlpy/internal/cache"
	"mlpy/internal/registry"
)

func sealedRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterDefaultBuiltins())
	reg.Seal()
	return reg
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(t.TempDir(), "0.1.0", 16, nil)
	require.NoError(t, err)
	return c
}

func TestGetOrCompile_CacheMissThenHit(t *testing.T) {
	c := newCache(t)
	reg := sealedRegistry(t)
	ctx := context.Background()
	source := `print("hi");`
	hash := "abcd1234abcd1234abcd1234abcd1234"

	a1, err := c.GetOrCompile(ctx, "f.ml", source, hash, time.Time{}, false, reg)
	require.NoError(t, err)
	require.NotNil(t, a1)

	a2, ok := c.Get(ctx, "f.ml", hash, time.Time{}, false)
	require.True(t, ok)
	require.Equal(t, a1.EmittedSource, a2.EmittedSource)
}

func TestGetOrCompile_ForceBypassesReadButWritesThrough(t *testing.T) {
	c := newCache(t)
	reg := sealedRegistry(t)
	ctx := context.Background()
	source := `print("hi");`
	hash := "ffff1234ffff1234ffff1234ffff1234"

	_, err := c.GetOrCompile(ctx, "f.ml", source, hash, time.Time{}, false, reg)
	require.NoError(t, err)

	_, err = c.GetOrCompile(ctx, "f.ml", source, hash, time.Time{}, true, reg)
	require.NoError(t, err)

	_, ok := c.Get(ctx, "f.ml", hash, time.Time{}, false)
	require.True(t, ok)
}

func TestGetOrCompile_ConcurrentCallersShareOneCompilation(t *testing.T) {
	c := newCache(t)
	reg := sealedRegistry(t)
	ctx := context.Background()
	source := `print("concurrent");`
	hash := "dead1234dead1234dead1234dead1234"

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			a, err := c.GetOrCompile(ctx, "concurrent.ml", source, hash, time.Time{}, false, reg)
			require.NoError(t, err)
			results[idx] = a.EmittedSource
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		require.Equal(t, results[0], r)
	}
}

func TestCache_ClearRemovesDiskEntries(t *testing.T) {
	c := newCache(t)
	reg := sealedRegistry(t)
	ctx := context.Background()
	_, err := c.GetOrCompile(ctx, "f.ml", `print(1);`, "1111222233334444", time.Time{}, false, reg)
	require.NoError(t, err)

	stats := c.Stats()
	require.Equal(t, 1, stats.DiskEntries)

	require.NoError(t, c.Clear())
	stats = c.Stats()
	require.Equal(t, 0, stats.DiskEntries)
	require.Equal(t, 0, stats.LRUEntries)
}

func TestCache_StaleOnIncompatibleMajorVersion(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	reg := sealedRegistry(t)
	ctx := context.Background()

	c1, err := cache.New(dir, "1.0.0", 16, nil)
	require.NoError(t, err)
	_, err = c1.GetOrCompile(ctx, "f.ml", `print(1);`, "9999888877776666", time.Time{}, false, reg)
	require.NoError(t, err)

	c2, err := cache.New(dir, "2.0.0", 16, nil)
	require.NoError(t, err)
	_, ok := c2.Get(ctx, "f.ml", "9999888877776666", time.Time{}, false)
	require.False(t, ok)
}
