// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 mlpy Contributors

// Package cache implements the two-tier transpilation cache of spec.md
// §4.8: an in-process bounded LRU backed by a filesystem sibling-file
// tier, keyed by source_hash. Grounded on the teacher's
// internal/access/policy Cache (atomic snapshot swap under a narrow
// write lock, a Prometheus last-update gauge, fail-closed-on-staleness
// philosophy) generalized from "one shared policy snapshot" to "many
// independently keyed compiled artifacts", and on
// internal/idgen (oklog/ulid/v2) for entry IDs.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"mlpy/internal/codegen"
	"mlpy/internal/idgen"
	"mlpy/internal/pipeline"
	"mlpy/internal/registry"
)

// Metrics is the subset of internal/observability.Metrics the cache
// records against; accepting the interface rather than the concrete type
// keeps this package free of an observability import cycle.
type Metrics interface {
	RecordCacheLookup(tier, result string)
	SetCacheEntries(tier string, n float64)
}

// NoopMetrics discards every recording call. Useful for tests and for
// CLI invocations that never started an observability server.
type NoopMetrics struct{}

func (NoopMetrics) RecordCacheLookup(string, string)  {}
func (NoopMetrics) SetCacheEntries(string, float64)   {}

// entry is what both cache tiers store: the pipeline Artifact plus the
// bookkeeping needed to decide staleness without recompiling.
type entry struct {
	ID              string
	SourceHash      string
	CompilerVersion string
	StoredAt        time.Time
	Artifact        *pipeline.Artifact
}

// Cache is a two-tier transpilation cache: a bounded in-process LRU in
// front of a filesystem tier under Dir. Zero value is not usable; build
// one with New.
type Cache struct {
	Dir             string
	CompilerVersion string
	Metrics         Metrics

	mu        sync.Mutex
	lru       *list.List               // of *entry, front = most recently used
	lruIndex  map[string]*list.Element // key -> element
	lruLimit  int
	inflight  map[string]*inflightCall
}

type inflightCall struct {
	done   chan struct{}
	result *pipeline.Artifact
	err    error
}

// New constructs a Cache rooted at dir (created if absent) with an
// in-process LRU bounded to lruLimit entries. metrics may be nil, in
// which case lookups and sizes are not recorded.
func New(dir, compilerVersion string, lruLimit int, metrics Metrics) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir %q: %w", dir, err)
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Cache{
		Dir:             dir,
		CompilerVersion: compilerVersion,
		Metrics:         metrics,
		lru:             list.New(),
		lruIndex:        make(map[string]*list.Element),
		lruLimit:        lruLimit,
		inflight:        make(map[string]*inflightCall),
	}, nil
}

// GetOrCompile is the primary entry point the pipeline-facing caller
// (the CLI's transpile/run commands) uses: it serves a cached artifact
// when one is fresh, otherwise compiles exactly once even under
// concurrent callers for the same key, per spec.md §5's "at-most-one
// in-flight compilation per key" invariant. Losers block on the winner's
// channel and share its result (success or error) rather than each
// starting their own redundant compilation.
func (c *Cache) GetOrCompile(ctx context.Context, file, source, sourceHash string, sourceModTime time.Time, force bool, reg *registry.Registry) (*pipeline.Artifact, error) {
	if artifact, ok := c.Get(ctx, file, sourceHash, sourceModTime, force); ok {
		return artifact, nil
	}

	k := key(file, sourceHash)

	c.mu.Lock()
	if call, ok := c.inflight[k]; ok {
		c.mu.Unlock()
		<-call.done
		return call.result, call.err
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[k] = call
	c.mu.Unlock()

	res := pipeline.Compile(ctx, file, source, c.CompilerVersion, reg)
	if res.Artifact == nil {
		call.err = fmt.Errorf("cache: compilation of %q produced no artifact", file)
	} else if res.State != pipeline.StateGenerated {
		// A failed compilation is returned as an artifact carrying its
		// critical diagnostics, not as a Go error, and is never cached.
		call.result = res.Artifact
	} else {
		call.result = res.Artifact
		if putErr := c.Put(file, sourceHash, res.Artifact); putErr != nil {
			// Cache write failures never fail a compilation that already
			// succeeded (spec.md §7); the artifact is still returned.
			_ = putErr
		}
	}

	c.mu.Lock()
	delete(c.inflight, k)
	c.mu.Unlock()
	close(call.done)

	return call.result, call.err
}

// key identifies a cache entry: the source file's content hash namespaced
// by the file path, so two different files with identical contents still
// get distinct entries (their emitted sibling files live at different
// paths on disk).
func key(file, sourceHash string) string {
	return file + "#" + sourceHash
}

// Get returns a cached artifact for (file, sourceHash) if one exists and
// is not stale. Staleness per spec.md §4.8: the stored compiler_version
// is not semver-compatible (different major) with the cache's current
// compiler version, or the on-disk emitted file is older than the source
// file, or (implicitly) the hash simply doesn't match, which Get already
// expresses by taking sourceHash as part of the key.
func (c *Cache) Get(ctx context.Context, file, sourceHash string, sourceModTime time.Time, force bool) (*pipeline.Artifact, bool) {
	if force {
		c.Metrics.RecordCacheLookup("lru", "bypass")
		return nil, false
	}
	k := key(file, sourceHash)

	c.mu.Lock()
	if el, ok := c.lruIndex[k]; ok {
		e := el.Value.(*entry)
		c.lru.MoveToFront(el)
		c.mu.Unlock()
		if c.stale(e, sourceModTime) {
			c.Metrics.RecordCacheLookup("lru", "stale")
			return nil, false
		}
		c.Metrics.RecordCacheLookup("lru", "hit")
		return e.Artifact, true
	}
	c.mu.Unlock()

	e, ok := c.loadDisk(file, sourceHash)
	if !ok {
		c.Metrics.RecordCacheLookup("disk", "miss")
		return nil, false
	}
	if c.stale(e, sourceModTime) {
		c.Metrics.RecordCacheLookup("disk", "stale")
		return nil, false
	}
	c.Metrics.RecordCacheLookup("disk", "hit")
	c.promote(k, e)
	return e.Artifact, true
}

// stale applies spec.md §4.8's invalidation rule: incompatible major
// compiler version, or the cached entry predates the source file.
func (c *Cache) stale(e *entry, sourceModTime time.Time) bool {
	if !compatibleVersions(e.CompilerVersion, c.CompilerVersion) {
		return true
	}
	if !sourceModTime.IsZero() && e.StoredAt.Before(sourceModTime) {
		return true
	}
	return false
}

func compatibleVersions(cached, current string) bool {
	cv, err1 := semver.NewVersion(cached)
	lv, err2 := semver.NewVersion(current)
	if err1 != nil || err2 != nil {
		// Can't parse either version: fail closed, treat as incompatible
		// rather than risk serving an artifact from an unknown compiler.
		return false
	}
	return cv.Major() == lv.Major()
}

// Put stores a freshly compiled artifact in both tiers. Put is called on
// the write-through path regardless of whether the read that preceded it
// was bypassed by --force-transpile: spec.md §4.8 requires a forced
// transpile to still refresh the cache on success.
func (c *Cache) Put(file, sourceHash string, artifact *pipeline.Artifact) error {
	e := &entry{
		ID:              idgen.NewULID().String(),
		SourceHash:      sourceHash,
		CompilerVersion: c.CompilerVersion,
		StoredAt:        time.Now(),
		Artifact:        artifact,
	}
	if err := c.storeDisk(file, e); err != nil {
		// Cache errors downgrade to "cache miss", never fail compilation
		// (spec.md §7): the caller already has a good artifact in hand.
		return fmt.Errorf("cache: write-through for %q failed (continuing without cache): %w", file, err)
	}
	c.promote(key(file, sourceHash), e)
	return nil
}

func (c *Cache) promote(k string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.lruIndex[k]; ok {
		el.Value = e
		c.lru.MoveToFront(el)
	} else {
		el := c.lru.PushFront(e)
		c.lruIndex[k] = el
		for c.lru.Len() > c.lruLimit && c.lruLimit > 0 {
			oldest := c.lru.Back()
			if oldest == nil {
				break
			}
			oe := oldest.Value.(*entry)
			c.lru.Remove(oldest)
			delete(c.lruIndex, key(filePathOf(oe), oe.SourceHash))
		}
	}
	c.Metrics.SetCacheEntries("lru", float64(c.lru.Len()))
}

// filePathOf recovers the original file path stashed alongside the
// artifact, since entry itself does not separately store it (the key
// combines file+hash, but eviction only has the entry value in hand).
func filePathOf(e *entry) string {
	if e.Artifact == nil {
		return ""
	}
	return e.Artifact.File
}

type onDiskEntry struct {
	ID              string `json:"id"`
	SourceHash      string `json:"source_hash"`
	CompilerVersion string `json:"compiler_version"`
	StoredAtUnix    int64  `json:"stored_at_unix"`
	EmittedSource   string `json:"emitted_source"`
	SourceMapText   string `json:"source_map"`
	RequiredCaps    []string `json:"required_capabilities"`
	File            string `json:"file"`
}

func (c *Cache) diskPath(file, sourceHash string) string {
	base := filepath.Base(file)
	return filepath.Join(c.Dir, fmt.Sprintf("%s.%s.json", base, sourceHash[:16]))
}

func (c *Cache) storeDisk(file string, e *entry) error {
	od := onDiskEntry{
		ID:              e.ID,
		SourceHash:      e.SourceHash,
		CompilerVersion: e.CompilerVersion,
		StoredAtUnix:    e.StoredAt.Unix(),
		EmittedSource:   e.Artifact.EmittedSource,
		File:            file,
		RequiredCaps:    e.Artifact.RequiredCapabilities,
	}
	if e.Artifact.SourceMap != nil {
		od.SourceMapText = e.Artifact.SourceMap.Serialize()
	}
	data, err := json.Marshal(od)
	if err != nil {
		return err
	}
	path := c.diskPath(file, e.SourceHash)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *Cache) loadDisk(file, sourceHash string) (*entry, bool) {
	path := c.diskPath(file, sourceHash)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var od onDiskEntry
	if err := json.Unmarshal(data, &od); err != nil {
		return nil, false
	}
	artifact := &pipeline.Artifact{
		File:                 od.File,
		SourceHash:           od.SourceHash,
		CompilerVersion:      od.CompilerVersion,
		EmittedSource:        od.EmittedSource,
		RequiredCapabilities: od.RequiredCaps,
	}
	if od.SourceMapText != "" {
		sm, err := codegen.ParseSourceMap(od.SourceMapText)
		if err == nil {
			artifact.SourceMap = sm
		}
	}
	return &entry{
		ID:              od.ID,
		SourceHash:       od.SourceHash,
		CompilerVersion:  od.CompilerVersion,
		StoredAt:         time.Unix(od.StoredAtUnix, 0),
		Artifact:         artifact,
	}, true
}

// Stats summarizes the two tiers for "mlpy cache stats".
type Stats struct {
	LRUEntries  int
	DiskEntries int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	lruN := c.lru.Len()
	c.mu.Unlock()

	diskN := 0
	entries, err := os.ReadDir(c.Dir)
	if err == nil {
		for _, de := range entries {
			if filepath.Ext(de.Name()) == ".json" {
				diskN++
			}
		}
	}
	return Stats{LRUEntries: lruN, DiskEntries: diskN}
}

// Clear empties both tiers.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.lru = list.New()
	c.lruIndex = make(map[string]*list.Element)
	c.mu.Unlock()

	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return fmt.Errorf("cache: clear: list %q: %w", c.Dir, err)
	}
	for _, de := range entries {
		if filepath.Ext(de.Name()) == ".json" {
			if err := os.Remove(filepath.Join(c.Dir, de.Name())); err != nil {
				return fmt.Errorf("cache: clear: remove %q: %w", de.Name(), err)
			}
		}
	}
	return nil
}

// Prune removes disk entries older than maxAge, leaving the in-process
// LRU untouched (it self-evicts by size, not age).
func (c *Cache) Prune(maxAge time.Duration) (removed int, err error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return 0, fmt.Errorf("cache: prune: list %q: %w", c.Dir, err)
	}
	cutoff := time.Now().Add(-maxAge)
	for _, de := range entries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(c.Dir, de.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
