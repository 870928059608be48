package metadatastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nexi-lab/nexuskernel/internal/cluster"
	"github.com/nexi-lab/nexuskernel/internal/config"
	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// replicatedLog is the subset of types.ReplicatedLog the store proposes
// writes through. A *cluster.Cluster satisfies it; nil means standalone.
type replicatedLog interface {
	Propose(ctx context.Context, command []byte) (uint64, error)
	IsLeader() bool
	LeaderAddress() string
}

// Store implements types.MetadataStore. Reads are served from an
// in-memory applied-state index kept current by apply;
// Backend is the durable persistence sink apply also writes to via persist
// (synchronously for memoryBackend, via a bounded writeBuffer for
// postgresBackend).
type Store struct {
	mu       sync.RWMutex
	byPath   map[types.VirtualPath]*types.FileMetadata
	versions map[types.VirtualPath][]types.VersionRecord

	backend Backend
	wb      *writeBuffer
	log     replicatedLog

	pathLocks sync.Map // types.VirtualPath -> *sync.Mutex

	cfg config.MetadataStoreConfig

	onWrite []func(path types.VirtualPath)

	stopCh chan struct{}
}

// New creates a metadata store. cl may be nil for standalone (no
// consensus) deployments, in which case writes apply immediately.
func New(cfg config.MetadataStoreConfig, cl *cluster.Cluster) (*Store, error) {
	var backend Backend
	var err error
	switch cfg.Backend {
	case "postgres":
		backend, err = newPostgresBackend(context.Background(), cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
	default:
		backend = newMemoryBackend()
	}

	s := &Store{
		byPath:   make(map[types.VirtualPath]*types.FileMetadata),
		versions: make(map[types.VirtualPath][]types.VersionRecord),
		backend:  backend,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}

	if cfg.Backend == "postgres" {
		// FlushBatch doubles as the writer pool size: that many persists
		// can be in flight against Postgres at once.
		s.wb = newWriteBuffer(cfg.WriteBuffer.MaxPending, cfg.WriteBuffer.FlushBatch)
	}

	if cl != nil {
		s.log = cl
		cl.OnApply(s.onLogEntry)
	}

	return s, nil
}

// OnWrite registers a callback invoked after every applied put or
// delete. Nothing in this module registers one: the kernel façade
// invalidates read sets itself around each write and delete.
func (s *Store) OnWrite(fn func(path types.VirtualPath)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = append(s.onWrite, fn)
}

func (s *Store) notifyWrite(path types.VirtualPath) {
	s.mu.RLock()
	hooks := append([]func(types.VirtualPath){}, s.onWrite...)
	s.mu.RUnlock()
	for _, h := range hooks {
		h(path)
	}
}

// Get returns the metadata at path from this node's applied state.
func (s *Store) Get(ctx context.Context, path types.VirtualPath) (*types.FileMetadata, error) {
	if err := types.ValidatePath(string(path)); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.byPath[path]
	if !ok {
		return nil, kernelerrors.NotFound("metadatastore", "no metadata at path").WithContext("path", string(path))
	}
	cp := *meta
	return &cp, nil
}

// Put proposes a write. When expectedETag is "" the write must create a
// new path (fails with Conflict if one exists); otherwise expectedETag
// must match the current ETag.
func (s *Store) Put(ctx context.Context, meta *types.FileMetadata, expectedETag string) error {
	if err := types.ValidatePath(string(meta.Path)); err != nil {
		return err
	}

	lock := s.lockFor(meta.Path)
	lock.Lock()
	defer lock.Unlock()

	current, _ := s.Get(ctx, meta.Path)
	if err := checkETag(current, expectedETag); err != nil {
		return err
	}

	next := *meta
	if current != nil {
		next.Version = current.Version + 1
		next.CreateTime = current.CreateTime
	} else {
		next.Version = 1
		if next.CreateTime.IsZero() {
			next.CreateTime = time.Now()
		}
	}
	next.ModifyTime = time.Now()
	next.ETag = computeETag(&next)

	sourceType := "update"
	if current == nil {
		sourceType = "original"
	}
	rec := types.VersionRecord{
		Path:        next.Path,
		Version:     next.Version,
		ContentHash: next.ContentHash,
		Size:        next.Size,
		Author:      next.OwnerSubject,
		Comment:     sourceType,
		CreatedAt:   next.ModifyTime,
	}

	return s.submit(ctx, cmdPut, &next, &rec, expectedETag)
}

// BatchPutItem is one member of a PutBatch call: the metadata to write and
// the ETag precondition it must satisfy, identical in meaning to a single
// Put's (meta, expectedETag) pair.
type BatchPutItem struct {
	Meta         *types.FileMetadata
	ExpectedETag string
}

// PutBatch validates every item's ETag precondition against a single
// consistent snapshot, then proposes all of them as one command: either
// every item lands or, if any precondition fails, none do. This is the
// metadata-store half of write_batch's "all succeed or all fail"
// contract; the façade is responsible for writing each item's CAS blob
// (an independent, idempotent operation) before calling PutBatch.
func (s *Store) PutBatch(ctx context.Context, items []BatchPutItem) error {
	if len(items) == 0 {
		return nil
	}

	paths := make([]types.VirtualPath, len(items))
	for i, it := range items {
		if err := types.ValidatePath(string(it.Meta.Path)); err != nil {
			return err
		}
		paths[i] = it.Meta.Path
	}

	locks := s.lockAllSorted(paths)
	defer func() {
		for _, l := range locks {
			l.Unlock()
		}
	}()

	cmds := make([]command, 0, len(items))
	for _, it := range items {
		current, _ := s.Get(ctx, it.Meta.Path)
		if err := checkETag(current, it.ExpectedETag); err != nil {
			return err
		}

		next := *it.Meta
		if current != nil {
			next.Version = current.Version + 1
			next.CreateTime = current.CreateTime
		} else {
			next.Version = 1
			if next.CreateTime.IsZero() {
				next.CreateTime = time.Now()
			}
		}
		next.ModifyTime = time.Now()
		next.ETag = computeETag(&next)

		sourceType := "update"
		if current == nil {
			sourceType = "original"
		}
		rec := types.VersionRecord{
			Path: next.Path, Version: next.Version, ContentHash: next.ContentHash,
			Size: next.Size, Author: next.OwnerSubject, Comment: sourceType, CreatedAt: next.ModifyTime,
		}
		cmds = append(cmds, command{Kind: cmdPut, Path: next.Path, Meta: &next, Version: &rec, ExpectedETag: it.ExpectedETag})
	}

	return s.proposeOrApply(ctx, command{Kind: cmdBatch, Items: cmds})
}

// lockAllSorted acquires per-path locks in sorted order, regardless of the
// caller's order, so two overlapping PutBatch calls can never deadlock on
// each other's locks.
func (s *Store) lockAllSorted(paths []types.VirtualPath) []*sync.Mutex {
	sorted := make([]types.VirtualPath, len(paths))
	copy(sorted, paths)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	seen := make(map[types.VirtualPath]bool, len(sorted))
	locks := make([]*sync.Mutex, 0, len(sorted))
	for _, p := range sorted {
		if seen[p] {
			continue
		}
		seen[p] = true
		l := s.lockFor(p)
		l.Lock()
		locks = append(locks, l)
	}
	return locks
}

// Delete proposes removal of path, subject to the same ETag discipline
// as Put.
func (s *Store) Delete(ctx context.Context, path types.VirtualPath, expectedETag string) error {
	if err := types.ValidatePath(string(path)); err != nil {
		return err
	}

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := checkETag(current, expectedETag); err != nil {
		return err
	}

	cmd := command{Kind: cmdDelete, Path: path, ExpectedETag: expectedETag}
	return s.proposeOrApply(ctx, cmd)
}

func (s *Store) submit(ctx context.Context, kind commandKind, meta *types.FileMetadata, rec *types.VersionRecord, expectedETag string) error {
	cmd := command{Kind: kind, Path: meta.Path, Meta: meta, Version: rec, ExpectedETag: expectedETag}
	return s.proposeOrApply(ctx, cmd)
}

func (s *Store) proposeOrApply(ctx context.Context, cmd command) error {
	if s.log == nil {
		return s.apply(cmd)
	}
	data, err := encodeCommand(cmd)
	if err != nil {
		return err
	}
	timeout := s.cfg.ProposeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err = s.log.Propose(pctx, data)
	return err
}

// onLogEntry is the cluster.OnApply hook: applies a committed command to
// this node's in-memory state, whether this node proposed it or learned
// it via log replication.
func (s *Store) onLogEntry(entry cluster.LogEntry) {
	cmd, err := decodeCommand(entry.Command)
	if err != nil {
		return
	}
	_ = s.apply(cmd)
}

func (s *Store) apply(cmd command) error {
	switch cmd.Kind {
	case cmdPut:
		s.mu.Lock()
		s.byPath[cmd.Path] = cmd.Meta
		if cmd.Version != nil {
			s.versions[cmd.Path] = append(s.versions[cmd.Path], *cmd.Version)
		}
		s.mu.Unlock()

		s.persist(cmd)
		s.notifyWrite(cmd.Path)
		return nil
	case cmdDelete:
		s.mu.Lock()
		delete(s.byPath, cmd.Path)
		s.mu.Unlock()

		s.persist(cmd)
		s.notifyWrite(cmd.Path)
		return nil
	case cmdBatch:
		s.mu.Lock()
		for _, item := range cmd.Items {
			s.byPath[item.Path] = item.Meta
			if item.Version != nil {
				s.versions[item.Path] = append(s.versions[item.Path], *item.Version)
			}
		}
		s.mu.Unlock()

		for _, item := range cmd.Items {
			s.persist(item)
			s.notifyWrite(item.Path)
		}
		return nil
	default:
		return kernelerrors.InvalidArgument("metadatastore", "unknown command kind")
	}
}

func (s *Store) persist(cmd command) {
	do := func() error {
		switch cmd.Kind {
		case cmdPut:
			if err := s.backend.Put(context.Background(), cmd.Meta); err != nil {
				return err
			}
			if cmd.Version != nil {
				return s.backend.AppendVersion(context.Background(), *cmd.Version)
			}
			return nil
		case cmdDelete:
			return s.backend.Delete(context.Background(), cmd.Path)
		}
		return nil
	}
	if s.wb != nil {
		_ = s.wb.Submit(context.Background(), do)
		return
	}
	_ = do()
}

// List returns a page of metadata under prefix, paginated by an opaque
// cursor encoding the last emitted path.
func (s *Store) List(ctx context.Context, prefix types.VirtualPath, cursor string, limit int) ([]types.FileMetadata, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]types.FileMetadata, 0, len(s.byPath))
	for p, meta := range s.byPath {
		if types.HasPrefix(string(p), string(prefix)) {
			matched = append(matched, *meta)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Path < matched[j].Path })

	if limit <= 0 {
		limit = s.cfg.ListPageSize
	}
	if limit <= 0 {
		limit = 1000
	}

	start := 0
	if cursor != "" {
		for i, meta := range matched {
			if string(meta.Path) > cursor {
				start = i
				break
			}
			start = i + 1
		}
	}
	if start >= len(matched) {
		return nil, "", nil
	}
	end := len(matched)
	nextCursor := ""
	if start+limit < end {
		end = start + limit
		nextCursor = string(matched[end-1].Path)
	}
	return matched[start:end], nextCursor, nil
}

// Versions returns path's version history, oldest first.
func (s *Store) Versions(ctx context.Context, path types.VirtualPath) ([]types.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.versions[path]
	out := make([]types.VersionRecord, len(recs))
	copy(out, recs)
	return out, nil
}

// Exists reports whether path has metadata.
func (s *Store) Exists(ctx context.Context, path types.VirtualPath) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byPath[path]
	return ok, nil
}

// IsImplicitDirectory reports whether path has no metadata of its own but
// is a prefix of at least one stored path, i.e. it exists only as an
// implied ancestor directory.
func (s *Store) IsImplicitDirectory(ctx context.Context, path types.VirtualPath) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.byPath[path]; ok {
		return false
	}
	for p := range s.byPath {
		if p != path && types.HasPrefix(string(p), string(path)) {
			return true
		}
	}
	return false
}

// GetBatch returns metadata for every path found among paths; missing
// paths are simply omitted rather than erroring the whole batch.
func (s *Store) GetBatch(ctx context.Context, paths []types.VirtualPath) map[types.VirtualPath]*types.FileMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.VirtualPath]*types.FileMetadata, len(paths))
	for _, p := range paths {
		if meta, ok := s.byPath[p]; ok {
			cp := *meta
			out[p] = &cp
		}
	}
	return out
}

// GetVersion returns the metadata snapshot as of version n.
func (s *Store) GetVersion(ctx context.Context, path types.VirtualPath, n int64) (*types.VersionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.versions[path] {
		if rec.Version == n {
			cp := rec
			return &cp, nil
		}
	}
	return nil, kernelerrors.NotFound("metadatastore", "no such version").WithContext("path", string(path)).
		WithDetail("version", n)
}

// Rollback writes a new version record pointing at version n's content
// hash, with source_type=rollback. It does not destroy history.
func (s *Store) Rollback(ctx context.Context, path types.VirtualPath, n int64) error {
	old, err := s.GetVersion(ctx, path, n)
	if err != nil {
		return err
	}
	current, err := s.Get(ctx, path)
	if err != nil {
		return err
	}

	next := *current
	next.ContentHash = old.ContentHash
	next.Size = old.Size

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	next.Version = current.Version + 1
	next.ModifyTime = time.Now()
	next.ETag = computeETag(&next)

	rec := types.VersionRecord{
		Path:        next.Path,
		Version:     next.Version,
		ContentHash: next.ContentHash,
		Size:        next.Size,
		Author:      next.OwnerSubject,
		Comment:     "rollback",
		CreatedAt:   next.ModifyTime,
	}
	return s.submit(ctx, cmdPut, &next, &rec, current.ETag)
}

// Close releases the backend and write buffer.
func (s *Store) Close() error {
	close(s.stopCh)
	if s.wb != nil {
		_ = s.wb.Close()
	}
	return s.backend.Close()
}

func (s *Store) lockFor(path types.VirtualPath) *sync.Mutex {
	l, _ := s.pathLocks.LoadOrStore(path, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func checkETag(current *types.FileMetadata, expectedETag string) error {
	if expectedETag == "" {
		if current != nil {
			return kernelerrors.ConflictErr("metadatastore", "path already exists", "", current.ETag)
		}
		return nil
	}
	if current == nil {
		return kernelerrors.NotFound("metadatastore", "no metadata at path")
	}
	if current.ETag != expectedETag {
		return kernelerrors.ConflictErr("metadatastore", "etag mismatch", expectedETag, current.ETag)
	}
	return nil
}

func computeETag(meta *types.FileMetadata) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s:%d", meta.Path, meta.Version, meta.ContentHash, meta.ModifyTime.UnixNano())))
	return hex.EncodeToString(sum[:])[:16]
}
