package events

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nexi-lab/nexuskernel/internal/config"
	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// sameBoxBus watches the directory tree under cfg.WatchRoot with fsnotify
// and keeps an in-memory lock table, for single-node deployments with no
// cluster. Grounded on gcsfuse's fsnotify dependency and on rclone's
// local-backend ChangeNotify, whose "known" map of prior path→entry-type
// is how a Remove/Rename event (which carries no type information of its
// own) gets classified as a file or directory deletion.
type sameBoxBus struct {
	watcher *fsnotify.Watcher
	zone    string

	mu        sync.Mutex
	known     map[string]bool // path -> isDir, as of the last observed event
	revisions map[string]uint64
	waiters   map[uint64]*waiter
	nextID    uint64

	locks *sameBoxLocks
}

var _ types.EventBus = (*sameBoxBus)(nil)

func newSameBoxBus(cfg config.EventsConfig) (*sameBoxBus, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.WatchRoot != "" {
		if err := addRecursive(watcher, cfg.WatchRoot); err != nil {
			return nil, err
		}
	}
	b := &sameBoxBus{
		watcher:   watcher,
		known:     make(map[string]bool),
		revisions: make(map[string]uint64),
		waiters:   make(map[uint64]*waiter),
		locks:     newSameBoxLocks(),
	}
	go b.watchLoop()
	return b, nil
}

// addRecursive walks root and adds every directory to watcher, since
// fsnotify only watches the directories it's explicitly told about (it
// has no native recursive-watch mode on Linux/macOS).
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func (b *sameBoxBus) watchLoop() {
	for {
		select {
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handleFsEvent(ev)
		case _, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (b *sameBoxBus) handleFsEvent(ev fsnotify.Event) {
	b.mu.Lock()
	wasDir, known := b.known[ev.Name]
	b.mu.Unlock()

	var out types.Event
	out.Path = ev.Name

	switch {
	case ev.Op&fsnotify.Create != 0:
		isDir := false
		if info, err := os.Stat(ev.Name); err == nil {
			isDir = info.IsDir()
		}
		b.mu.Lock()
		b.known[ev.Name] = isDir
		b.mu.Unlock()
		if isDir {
			out.Type = types.EventDirCreate
			_ = b.watcher.Add(ev.Name)
		} else {
			out.Type = types.EventFileWrite
		}
	case ev.Op&fsnotify.Write != 0:
		out.Type = types.EventFileWrite
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		b.mu.Lock()
		delete(b.known, ev.Name)
		b.mu.Unlock()
		if known && wasDir {
			out.Type = types.EventDirDelete
		} else {
			out.Type = types.EventFileDelete
		}
	default:
		return
	}

	b.publishLocal(out)
}

func (b *sameBoxBus) publishLocal(ev types.Event) {
	b.mu.Lock()
	b.revisions[ev.Path]++
	ev.Revision = b.revisions[ev.Path]
	b.mu.Unlock()
	b.deliverLocal(ev)
}

func (b *sameBoxBus) deliverLocal(ev types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, w := range b.waiters {
		if ev.Revision <= w.since {
			continue
		}
		if !matches(w.pattern, ev.Path) && !matches(w.pattern, ev.OldPath) {
			continue
		}
		select {
		case w.ch <- ev:
			delete(b.waiters, id)
		default:
		}
	}
}

// Publish lets the kernel façade announce an event directly (e.g. a
// rename, which the façade knows is a rename but the raw fsnotify stream
// reports as an unpaired remove + create).
func (b *sameBoxBus) Publish(ctx context.Context, ev types.Event) error {
	b.publishLocal(ev)
	return nil
}

func (b *sameBoxBus) WaitForChanges(ctx context.Context, pattern, zone string, sinceRevision uint64, timeout time.Duration) (*types.Event, error) {
	w := &waiter{pattern: pattern, since: sinceRevision, ch: make(chan types.Event, 1)}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.waiters[id] = w
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.waiters, id)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-w.ch:
		return &ev, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, nil
	}
}

func (b *sameBoxBus) Lock(ctx context.Context, path, holder string, timeout, ttl time.Duration, maxHolders int) (string, error) {
	return acquireWithRetry(ctx, timeout, func() (string, error) {
		return b.locks.acquire(path, holder, maxHolders)
	})
}

// ExtendLock is a no-op on the same-box track: its lock table has no TTL.
func (b *sameBoxBus) ExtendLock(ctx context.Context, lockID, path string, ttl time.Duration) (bool, error) {
	return b.locks.holds(path, lockID), nil
}

func (b *sameBoxBus) Unlock(ctx context.Context, lockID, path string) (bool, error) {
	return b.locks.release(path, lockID), nil
}

// Close stops the fsnotify watcher.
func (b *sameBoxBus) Close() error {
	return b.watcher.Close()
}

// sameBoxLocks is a single mutex guarding a table of up-to-maxHolders
// token sets per path, per spec §5's "one mutex guarding the whole
// table; operations are O(1)".
type sameBoxLocks struct {
	mu     sync.Mutex
	tokens map[string]map[string]bool
	nextID uint64
}

func newSameBoxLocks() *sameBoxLocks {
	return &sameBoxLocks{tokens: make(map[string]map[string]bool)}
}

func (l *sameBoxLocks) acquire(path, holder string, maxHolders int) (string, error) {
	if maxHolders <= 0 {
		maxHolders = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	held := l.tokens[path]
	if len(held) >= maxHolders {
		return "", kernelerrors.ConflictErr("events", "path is locked by the maximum number of holders", "", "").WithContext("path", path)
	}
	l.nextID++
	token := holder + "/" + strconv.FormatUint(l.nextID, 10)
	if held == nil {
		held = make(map[string]bool)
		l.tokens[path] = held
	}
	held[token] = true
	return token, nil
}

func (l *sameBoxLocks) holds(path, token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tokens[path][token]
}

func (l *sameBoxLocks) release(path, token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	held, ok := l.tokens[path][token]
	if !ok || !held {
		return false
	}
	delete(l.tokens[path], token)
	if len(l.tokens[path]) == 0 {
		delete(l.tokens, path)
	}
	return true
}
