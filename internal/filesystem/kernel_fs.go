package filesystem

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/nexi-lab/nexuskernel/internal/kernel"
	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// KernelFS is the only FilesystemInterface implementation: every method
// is a direct call into a *kernel.Kernel under a single fixed Subject,
// since a FUSE mount point has no per-syscall caller identity to thread
// through without a platform-specific uid/gid-to-subject mapping (no such
// mapping exists; DESIGN.md's External transport notes record this).
//
// The kernel's unit of I/O is a whole file (CAS stores content-addressed
// blobs, not byte ranges), so each FileHandle buffers the full content in
// memory between Open and Flush/Close - there's no partial-object fetch
// to cache or coalesce against.
type KernelFS struct {
	k       *kernel.Kernel
	subject types.Subject

	nextHandle uint64
}

func NewKernelFS(k *kernel.Kernel, subject types.Subject) *KernelFS {
	return &KernelFS{k: k, subject: subject}
}

// kernelFileHandle holds an open file's buffered content. Offset-based
// writes can extend past len(buf); missing bytes are zero-filled, same
// as a sparse POSIX write.
type kernelFileHandle struct {
	id   uint64
	path types.VirtualPath

	mu    sync.Mutex
	buf   []byte
	dirty bool
}

func (h *kernelFileHandle) ID() uint64      { return h.id }
func (h *kernelFileHandle) Path() string    { return string(h.path) }
func (h *kernelFileHandle) Close() error    { return nil }

func (fs *KernelFS) Open(ctx context.Context, path string, flags int) (FileHandle, error) {
	vp := types.VirtualPath(path)
	data, _, err := fs.k.Read(ctx, fs.subject, vp, kernel.ReadOptions{})
	if err != nil {
		kerr, ok := kernelerrors.As(err)
		if ok && kerr.Kind == kernelerrors.KindNotFound && flags&os.O_CREATE != 0 {
			return fs.Create(ctx, path, 0o644)
		}
		return nil, err
	}

	id := atomic.AddUint64(&fs.nextHandle, 1)
	buf := make([]byte, len(data))
	copy(buf, data)
	return &kernelFileHandle{id: id, path: vp, buf: buf}, nil
}

func (fs *KernelFS) Create(ctx context.Context, path string, mode os.FileMode) (FileHandle, error) {
	vp := types.VirtualPath(path)
	if _, err := fs.k.Write(ctx, fs.subject, vp, []byte{}, kernel.WriteOptions{}); err != nil {
		return nil, err
	}
	id := atomic.AddUint64(&fs.nextHandle, 1)
	return &kernelFileHandle{id: id, path: vp}, nil
}

func (fs *KernelFS) Close(ctx context.Context, fh FileHandle) error {
	return fs.Flush(ctx, fh)
}

func (fs *KernelFS) Read(ctx context.Context, fh FileHandle, buf []byte, offset int64) (int, error) {
	h := fh.(*kernelFileHandle)
	h.mu.Lock()
	defer h.mu.Unlock()

	if offset >= int64(len(h.buf)) {
		return 0, nil
	}
	n := copy(buf, h.buf[offset:])
	return n, nil
}

func (fs *KernelFS) Write(ctx context.Context, fh FileHandle, data []byte, offset int64) (int, error) {
	h := fh.(*kernelFileHandle)
	h.mu.Lock()
	defer h.mu.Unlock()

	end := offset + int64(len(data))
	if end > int64(len(h.buf)) {
		grown := make([]byte, end)
		copy(grown, h.buf)
		h.buf = grown
	}
	copy(h.buf[offset:end], data)
	h.dirty = true
	return len(data), nil
}

func (fs *KernelFS) Flush(ctx context.Context, fh FileHandle) error {
	h := fh.(*kernelFileHandle)
	h.mu.Lock()
	if !h.dirty {
		h.mu.Unlock()
		return nil
	}
	buf := make([]byte, len(h.buf))
	copy(buf, h.buf)
	h.mu.Unlock()

	if _, err := fs.k.Write(ctx, fs.subject, h.path, buf, kernel.WriteOptions{}); err != nil {
		return err
	}

	h.mu.Lock()
	h.dirty = false
	h.mu.Unlock()
	return nil
}

func (fs *KernelFS) ReadDir(ctx context.Context, path string) ([]DirEntry, error) {
	entries, err := fs.k.List(ctx, fs.subject, types.VirtualPath(path), kernel.ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, len(entries))
	for i, e := range entries {
		out[i] = DirEntry{Name: e.Name, IsDir: e.IsDir, Size: e.Size, Mode: os.FileMode(e.Mode)}
	}
	return out, nil
}

// Mkdir is a no-op: the kernel's directory tree is implicit in metadata
// path prefixes (List already walks it that way), so there's no separate
// directory record to create.
func (fs *KernelFS) Mkdir(ctx context.Context, path string, mode os.FileMode) error {
	return nil
}

func (fs *KernelFS) Remove(ctx context.Context, path string) error {
	return fs.k.Delete(ctx, fs.subject, types.VirtualPath(path), kernel.DeleteOptions{})
}

func (fs *KernelFS) Rename(ctx context.Context, oldPath, newPath string) error {
	_, err := fs.k.Rename(ctx, fs.subject, types.VirtualPath(oldPath), types.VirtualPath(newPath))
	return err
}

func (fs *KernelFS) Stat(ctx context.Context, path string) (FileInfo, error) {
	meta, err := fs.k.Stat(ctx, fs.subject, types.VirtualPath(path))
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name_:       string(meta.Path),
		Size_:       meta.Size,
		Mode_:       os.FileMode(meta.Mode),
		ModTime_:    meta.ModifyTime,
		IsDir_:      meta.IsDir,
		ContentHash: meta.ContentHash,
		ETag:        meta.ETag,
		Version:     meta.Version,
	}, nil
}

func (fs *KernelFS) Truncate(ctx context.Context, path string, size int64) error {
	vp := types.VirtualPath(path)
	data, _, err := fs.k.Read(ctx, fs.subject, vp, kernel.ReadOptions{})
	if err != nil {
		return err
	}
	if int64(len(data)) == size {
		return nil
	}
	buf := make([]byte, size)
	copy(buf, data)
	_, err = fs.k.Write(ctx, fs.subject, vp, buf, kernel.WriteOptions{})
	return err
}
