// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mlpy/internal/pipeline"
)

// TestMain verifies no goroutine started by a test in this package is
// still running once every test function returns, guarding the
// concurrent GetOrCompile path below against a losing caller that never
// unblocks from the winner's fan-out channel.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGetOrCompile_ConcurrentCallersShareOneCompileNoLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := newCache(t)
	reg := sealedRegistry(t)
	source := `x = 1 + 1;`
	hash := pipeline.HashSource(source)

	const callers = 32
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			artifact, err := c.GetOrCompile(context.Background(), "concurrent.ml", source, hash, time.Now(), false, reg)
			errs[i] = err
			if artifact != nil {
				results[i] = artifact.EmittedSource
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0], results[i], "every concurrent caller should observe the same compiled output")
	}
}
