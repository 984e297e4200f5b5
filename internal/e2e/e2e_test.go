// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

//go:build integration

package e2e_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"mlpy/internal/cache"
	"mlpy/internal/diagnostics"
	"mlpy/internal/pipeline"
	"mlpy/internal/registry"
)

func newRegistry() *registry.Registry {
	reg := registry.New()
	Expect(reg.RegisterDefaultBuiltins()).To(Succeed())
	reg.Seal()
	return reg
}

var _ = Describe("Compile through cache", func() {
	const source = `x = 1 + 2;
print(x);
`
	const compilerVersion = "1.0.0"

	var (
		ctx context.Context
		reg *registry.Registry
		c   *cache.Cache
	)

	BeforeEach(func() {
		ctx = context.Background()
		reg = newRegistry()

		var err error
		c, err = cache.New(GinkgoT().TempDir(), compilerVersion, 16, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("compiles a fresh source and writes through to the cache", func() {
		sourceHash := pipeline.HashSource(source)
		artifact, err := c.GetOrCompile(ctx, "prog.ml", source, sourceHash, time.Now(), false, reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(artifact.Diagnostics.HasCritical()).To(BeFalse())
		Expect(artifact.EmittedSource).To(ContainSubstring("mlpy_add(1, 2)"))

		stats := c.Stats()
		Expect(stats.LRUEntries).To(Equal(1))
		Expect(stats.DiskEntries).To(Equal(1))
	})

	It("serves the second request from the cache without recompiling", func() {
		sourceHash := pipeline.HashSource(source)
		modTime := time.Now()
		first, err := c.GetOrCompile(ctx, "prog.ml", source, sourceHash, modTime, false, reg)
		Expect(err).NotTo(HaveOccurred())

		second, err := c.GetOrCompile(ctx, "prog.ml", source, sourceHash, modTime, false, reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(BeIdenticalTo(first))
		Expect(second.EmittedSource).To(Equal(first.EmittedSource))
		Expect(second.SourceHash).To(Equal(first.SourceHash))
	})

	It("bypasses the cache when force is set, still returning an equivalent artifact", func() {
		sourceHash := pipeline.HashSource(source)
		_, err := c.GetOrCompile(ctx, "prog.ml", source, sourceHash, time.Now(), false, reg)
		Expect(err).NotTo(HaveOccurred())

		forced, err := c.GetOrCompile(ctx, "prog.ml", source, sourceHash, time.Now(), true, reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(forced.Diagnostics.HasCritical()).To(BeFalse())
	})

	It("recompiles when the source hash changes", func() {
		sourceHash := pipeline.HashSource(source)
		_, err := c.GetOrCompile(ctx, "prog.ml", source, sourceHash, time.Now(), false, reg)
		Expect(err).NotTo(HaveOccurred())

		changed := source + "y = 4;\n"
		changedHash := pipeline.HashSource(changed)
		artifact, err := c.GetOrCompile(ctx, "prog.ml", changed, changedHash, time.Now(), false, reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(artifact.SourceHash).To(Equal(changedHash))

		stats := c.Stats()
		Expect(stats.DiskEntries).To(Equal(2))
	})

	It("reports a critical diagnostic for a program that never compiles", func() {
		broken := "x = ;"
		sourceHash := pipeline.HashSource(broken)
		artifact, err := c.GetOrCompile(ctx, "broken.ml", broken, sourceHash, time.Now(), false, reg)
		Expect(err).NotTo(HaveOccurred())
		Expect(artifact.Diagnostics.HasCritical()).To(BeTrue())
	})
})

var _ = Describe("Audit", func() {
	It("reports no critical diagnostics for a safe program", func() {
		reg := newRegistry()
		diags := pipeline.Diagnose(context.Background(), "prog.ml", `print("hello");`, "test-1.0.0", reg)
		for _, d := range diags {
			Expect(d.Severity).NotTo(Equal(diagnostics.SeverityCritical))
		}
	})
})
