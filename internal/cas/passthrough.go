package cas

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// Passthrough is the local-filesystem content-addressed backend used by
// the "passthrough" CAS mount. It shards blobs into a two-level
// directory tree keyed by the first four hex characters of their SHA-256
// hash, and writes them write-to-temp+fsync+rename so a crash mid-write
// never leaves a partially-written blob visible under its final name.
//
// Grounded on internal/storage/s3/backend.go's write/read lifecycle
// (teacher), regeneralized from path keys to content-hash keys, and on
// internal/circuit/breaker.go's mutex-guarded state idiom for the
// per-hash lock table that serializes concurrent writers of the same
// blob.
type Passthrough struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPassthrough creates a local CAS backend rooted at dir, creating it
// if necessary.
func NewPassthrough(dir string) (*Passthrough, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kernelerrors.Backend("cas", dir, err)
	}
	return &Passthrough{root: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func hashData(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (p *Passthrough) objectPath(hash string) (string, error) {
	if len(hash) < 4 {
		return "", kernelerrors.InvalidArgument("cas", "content hash too short").WithContext("hash", hash)
	}
	return filepath.Join(p.root, hash[:2], hash[2:4], hash), nil
}

func (p *Passthrough) lockFor(hash string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[hash]
	if !ok {
		l = &sync.Mutex{}
		p.locks[hash] = l
	}
	return l
}

// Put writes data under its content hash if not already present, and
// returns the hash. Writes are idempotent: a second Put of identical
// bytes is a no-op beyond the existence check.
func (p *Passthrough) Put(ctx context.Context, data []byte) (string, error) {
	hash := hashData(data)
	lock := p.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	path, err := p.objectPath(hash)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", kernelerrors.Backend("cas", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", kernelerrors.Backend("cas", path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", kernelerrors.Backend("cas", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", kernelerrors.Backend("cas", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", kernelerrors.Backend("cas", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", kernelerrors.Backend("cas", path, err)
	}
	return hash, nil
}

// Get returns the blob for hash.
func (p *Passthrough) Get(ctx context.Context, hash string) ([]byte, error) {
	path, err := p.objectPath(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kernelerrors.NotFound("cas", "content object not found").WithContext("hash", hash)
		}
		return nil, kernelerrors.Backend("cas", path, err)
	}
	return data, nil
}

// Head returns metadata about a blob without reading its bytes.
func (p *Passthrough) Head(ctx context.Context, hash string) (*types.ContentObject, error) {
	path, err := p.objectPath(hash)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kernelerrors.NotFound("cas", "content object not found").WithContext("hash", hash)
		}
		return nil, kernelerrors.Backend("cas", path, err)
	}
	return &types.ContentObject{
		Hash:     hash,
		Size:     info.Size(),
		StoredAt: info.ModTime(),
	}, nil
}

// Delete removes a blob. It is not an error to delete a hash that is
// still referenced elsewhere — ref-count enforcement belongs to the
// metadata store's GC sweep, not the backend.
func (p *Passthrough) Delete(ctx context.Context, hash string) error {
	path, err := p.objectPath(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return kernelerrors.Backend("cas", path, err)
	}
	return nil
}

// Exists reports whether a blob for hash is present.
func (p *Passthrough) Exists(ctx context.Context, hash string) (bool, error) {
	path, err := p.objectPath(hash)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, kernelerrors.Backend("cas", path, err)
}

// HealthCheck verifies the CAS root is still writable.
func (p *Passthrough) HealthCheck(ctx context.Context) error {
	probe := filepath.Join(p.root, fmt.Sprintf(".health-%d", time.Now().UnixNano()))
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return kernelerrors.Backend("cas", p.root, err)
	}
	return os.Remove(probe)
}
