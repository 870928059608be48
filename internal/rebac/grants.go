package rebac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexi-lab/nexuskernel/pkg/types"
)

var errNoLister = errors.New("rebac: no descendant lister configured")

// DescendantLister enumerates the files under a directory prefix, used by
// the grant walker to find what needs a bitmap entry. *metadatastore.Store
// does not implement it; the kernel façade passes an adapter over the
// store (internal/kernel/adapters.go).
type DescendantLister interface {
	ListDescendants(ctx context.Context, prefix types.VirtualPath, zone string) ([]types.VirtualPath, error)
}

// grantManager owns the directory-grants table and the bitmap cache that
// accelerates Check for paths under a granted prefix. Grounded on
// internal/batch/processor.go's and metadatastore's RunGC sweep's shared
// discipline: small batches, a yield between batches, and a background
// goroutine driven by a channel of work rather than a blocking call on
// the write path.
type grantManager struct {
	mu      sync.Mutex
	records []*types.DirectoryGrantRecord

	bitmaps  types.Cache // key: subject#permission#resourceType -> map[resourceID]bool
	lister   DescendantLister
	batch    int

	queue   chan *types.DirectoryGrantRecord
	metrics grantMetrics

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type grantMetrics struct {
	pending   int64
	completed int64
	failed    int64
	lastError atomic.Value // string
}

func newGrantManager(bitmaps types.Cache, lister DescendantLister, batchSize int) *grantManager {
	if batchSize <= 0 {
		batchSize = 500
	}
	gm := &grantManager{
		bitmaps: bitmaps,
		lister:  lister,
		batch:   batchSize,
		queue:   make(chan *types.DirectoryGrantRecord, 64),
		stopCh:  make(chan struct{}),
	}
	gm.metrics.lastError.Store("")
	gm.wg.Add(1)
	go gm.worker()
	return gm
}

func (gm *grantManager) stop() {
	gm.stopOnce.Do(func() {
		close(gm.stopCh)
		gm.wg.Wait()
	})
}

// grant records a new directory grant and enqueues its descendant walk.
// §4.4.4: the walk itself never blocks the caller.
func (gm *grantManager) grant(subject, relation, resourceType, prefix, zone string) *types.DirectoryGrantRecord {
	rec := &types.DirectoryGrantRecord{
		Prefix:          prefix,
		Zone:            zone,
		Relation:        relation,
		Subject:         subject,
		ResourceType:    resourceType,
		ExpansionStatus: types.ExpansionPending,
		CreatedAt:       time.Now(),
	}

	gm.mu.Lock()
	gm.records = append(gm.records, rec)
	gm.mu.Unlock()
	atomic.AddInt64(&gm.metrics.pending, 1)

	select {
	case gm.queue <- rec:
	default:
		// Queue full: the record stays "pending" until a prewalk triggered
		// by PredictiveCache's OnHighTraffic hook picks it up; nothing else
		// retries it.
	}
	return rec
}

// prewalk is the hook wired to internal/cache's PredictiveCache
// OnHighTraffic callback: when a path sees unusually frequent checks, any
// matching pending grant is walked ahead of its normal queue position.
func (gm *grantManager) prewalk(resourceID string) {
	gm.mu.Lock()
	var match *types.DirectoryGrantRecord
	for _, rec := range gm.records {
		if rec.ExpansionStatus == types.ExpansionPending && types.HasPrefix(resourceID, rec.Prefix) {
			match = rec
			break
		}
	}
	gm.mu.Unlock()
	if match == nil {
		return
	}
	select {
	case gm.queue <- match:
	default:
	}
}

func (gm *grantManager) worker() {
	defer gm.wg.Done()
	for {
		select {
		case <-gm.stopCh:
			return
		case rec := <-gm.queue:
			gm.walk(rec)
		}
	}
}

func (gm *grantManager) walk(rec *types.DirectoryGrantRecord) {
	gm.mu.Lock()
	if rec.ExpansionStatus == types.ExpansionCompleted || rec.ExpansionStatus == types.ExpansionRunning {
		gm.mu.Unlock()
		return
	}
	rec.ExpansionStatus = types.ExpansionRunning
	gm.mu.Unlock()

	if gm.lister == nil {
		gm.fail(rec, errNoLister)
		return
	}

	ctx := context.Background()
	paths, err := gm.lister.ListDescendants(ctx, types.VirtualPath(rec.Prefix), rec.Zone)
	if err != nil {
		gm.fail(rec, err)
		return
	}

	bitmapKey := bitmapCacheKey(rec.Subject, rec.Relation, rec.ResourceType)
	for start := 0; start < len(paths); start += gm.batch {
		end := start + gm.batch
		if end > len(paths) {
			end = len(paths)
		}
		gm.insertBitmap(bitmapKey, paths[start:end])
		time.Sleep(time.Millisecond)
	}

	gm.mu.Lock()
	rec.ExpansionStatus = types.ExpansionCompleted
	rec.CompletedAt = time.Now()
	gm.mu.Unlock()
	atomic.AddInt64(&gm.metrics.pending, -1)
	atomic.AddInt64(&gm.metrics.completed, 1)
}

func (gm *grantManager) fail(rec *types.DirectoryGrantRecord, err error) {
	gm.mu.Lock()
	rec.ExpansionStatus = types.ExpansionFailed
	rec.Error = err.Error()
	gm.mu.Unlock()
	atomic.AddInt64(&gm.metrics.pending, -1)
	atomic.AddInt64(&gm.metrics.failed, 1)
	gm.metrics.lastError.Store(err.Error())
}

func (gm *grantManager) insertBitmap(bitmapKey string, paths []types.VirtualPath) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	set := gm.loadBitmapLocked(bitmapKey)
	for _, p := range paths {
		set[string(p)] = true
	}
	gm.bitmaps.Put(bitmapKey, set, 0)
}

// extend adds a single new path to every bitmap whose subject/relation
// already covers one of its ancestor prefixes, per §4.4.4's "on new-file
// creation, the metadata store notifies the engine so the bitmap can be
// extended".
func (gm *grantManager) extend(path, zone, resourceType string) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for _, rec := range gm.records {
		if rec.ExpansionStatus != types.ExpansionCompleted || rec.Zone != zone || rec.ResourceType != resourceType {
			continue
		}
		if !types.HasPrefix(path, rec.Prefix) {
			continue
		}
		key := bitmapCacheKey(rec.Subject, rec.Relation, rec.ResourceType)
		set := gm.loadBitmapLocked(key)
		set[path] = true
		gm.bitmaps.Put(key, set, 0)
	}
}

// move relocates path from bitmaps rooted at oldParent's chain to bitmaps
// rooted at newParent's chain, per §4.4.4's rename behavior.
func (gm *grantManager) move(oldPath, newPath, zone, resourceType string) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for _, rec := range gm.records {
		if rec.ExpansionStatus != types.ExpansionCompleted || rec.Zone != zone || rec.ResourceType != resourceType {
			continue
		}
		key := bitmapCacheKey(rec.Subject, rec.Relation, rec.ResourceType)
		set := gm.loadBitmapLocked(key)
		if types.HasPrefix(oldPath, rec.Prefix) {
			delete(set, oldPath)
		}
		if types.HasPrefix(newPath, rec.Prefix) {
			set[newPath] = true
		}
		gm.bitmaps.Put(key, set, 0)
	}
}

func (gm *grantManager) loadBitmapLocked(key string) map[string]bool {
	if v, ok := gm.bitmaps.Get(key); ok {
		if set, ok := v.(map[string]bool); ok {
			return set
		}
	}
	return make(map[string]bool)
}

// lookupBitmap checks the bitmap cache before falling back to the full
// graph walk. Returning ok=false means "no opinion": Check must still
// consult the graph, preserving I8.
func (gm *grantManager) lookupBitmap(subject, permission, resourceType, resourceID, zone string) (allowed, ok bool) {
	v, found := gm.bitmaps.Get(bitmapCacheKey(subject, permission, resourceType))
	if !found {
		return false, false
	}
	set, ok := v.(map[string]bool)
	if !ok {
		return false, false
	}
	// The bitmap only ever records positive grants; absence means "no
	// opinion" (fall through to the graph walk), never "denied".
	if set[resourceID] {
		return true, true
	}
	return false, false
}

func bitmapCacheKey(subject, permission, resourceType string) string {
	return subject + "#" + permission + "#" + resourceType
}

// Stats reports the grant walker's pending/completed/last-error counts,
// per §4.4.4's failure model.
type GrantStats struct {
	Pending   int64
	Completed int64
	Failed    int64
	LastError string
}

func (gm *grantManager) stats() GrantStats {
	return GrantStats{
		Pending:   atomic.LoadInt64(&gm.metrics.pending),
		Completed: atomic.LoadInt64(&gm.metrics.completed),
		Failed:    atomic.LoadInt64(&gm.metrics.failed),
		LastError: gm.metrics.lastError.Load().(string),
	}
}
