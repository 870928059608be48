package rebac

import (
	"context"
	"time"

	"github.com/nexi-lab/nexuskernel/internal/cache"
	"github.com/nexi-lab/nexuskernel/internal/config"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// Engine implements types.ReBACEngine: tuple storage, depth-bounded
// check/expand, and directory-grant pre-materialization.
type Engine struct {
	schema *SchemaStore
	tuples *TupleStore

	checkCache types.Cache
	checkTTL   time.Duration
	maxDepth   int

	openAccessFallback bool

	posix  PosixResolver
	groups GroupResolver

	grants    *grantManager
	predictor *cache.PredictiveCache
}

// Option configures optional Engine dependencies wired in by the kernel
// façade once the metadata store exists.
type Option func(*Engine)

// WithPosixResolver wires the mode-bit/owner lookup the file namespace's
// read/write/execute relations fall back to.
func WithPosixResolver(r PosixResolver) Option {
	return func(e *Engine) { e.posix = r }
}

// WithGroupResolver wires POSIX group-membership lookups for the same
// fallback's group-permission bits.
func WithGroupResolver(r GroupResolver) Option {
	return func(e *Engine) { e.groups = r }
}

// NewEngine constructs a ReBAC engine. lister is used by the directory
// grant walker to enumerate descendants; it may be nil, in which case
// Grant still records the row but its walk fails at once with
// errNoLister and the record is marked failed (no bitmap is built).
func NewEngine(cfg config.ReBACConfig, lister DescendantLister, opts ...Option) (*Engine, error) {
	schema, err := NewSchemaStore(cfg.SchemaPath)
	if err != nil {
		return nil, err
	}

	maxDepth := cfg.MaxCheckDepth
	if maxDepth <= 0 {
		maxDepth = 20
	}
	checkTTL := cfg.CheckCacheTTL
	if checkTTL <= 0 {
		checkTTL = 30 * time.Second
	}
	checkSize := cfg.CheckCacheSize
	if checkSize <= 0 {
		checkSize = 50000
	}

	checkCache := cache.NewLRUCache(&cache.CacheConfig{MaxEntries: checkSize, TTL: checkTTL})
	bitmaps := cache.NewLRUCache(&cache.CacheConfig{MaxEntries: checkSize, TTL: 0})

	e := &Engine{
		schema:             schema,
		tuples:             newTupleStore(),
		checkCache:         checkCache,
		checkTTL:           checkTTL,
		maxDepth:           maxDepth,
		openAccessFallback: cfg.OpenAccessFallback,
		grants:             newGrantManager(bitmaps, lister, cfg.GrantWalkerBatch),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.predictor = cache.NewPredictiveCache(cache.NewLRUCache(&cache.CacheConfig{MaxEntries: checkSize}), nil, e.grants.prewalk)

	schema.OnReload(e.invalidateSchema)

	return e, nil
}

// Write inserts tuple and invalidates the per-pair check cache (every
// permission cached for that subject and object). Directory-grant bitmap
// entries are not invalidated.
func (e *Engine) Write(ctx context.Context, tuple types.ReBACTuple) error {
	if err := e.tuples.writeTuple(tuple); err != nil {
		return err
	}
	e.invalidatePair(tuple.Subject, tuple.ResourceType, tuple.ResourceID, tuple.Zone)
	return nil
}

// Delete removes tuple, applying the same invalidation as Write.
func (e *Engine) Delete(ctx context.Context, tuple types.ReBACTuple) error {
	if err := e.tuples.deleteTuple(tuple); err != nil {
		return err
	}
	e.invalidatePair(tuple.Subject, tuple.ResourceType, tuple.ResourceID, tuple.Zone)
	return nil
}

// Grant records a directory grant and enqueues its descendant bitmap
// walk, per §4.4.4.
func (e *Engine) Grant(subject, relation, resourceType, prefix, zone string) *types.DirectoryGrantRecord {
	return e.grants.grant(subject, relation, resourceType, prefix, zone)
}

// NotifyCreated tells the engine a new path was created under
// resourceType so any completed bitmap whose prefix covers it gets
// extended, per §4.4.4's "on new-file creation" clause.
func (e *Engine) NotifyCreated(path, zone, resourceType string) {
	e.grants.extend(path, zone, resourceType)
}

// NotifyRenamed tells the engine a path moved, relocating bitmap
// membership between the old and new parent chains.
func (e *Engine) NotifyRenamed(oldPath, newPath, zone, resourceType string) {
	e.grants.move(oldPath, newPath, zone, resourceType)
}

// GrantStats reports the directory-grant walker's pending/completed/
// failed counts and last error, per §4.4.4's failure model.
func (e *Engine) GrantStats() GrantStats {
	return e.grants.stats()
}

// Close stops the engine's background grant walker.
func (e *Engine) Close() {
	e.grants.stop()
}

var _ types.ReBACEngine = (*Engine)(nil)
