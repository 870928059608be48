//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/winfsp/cgofuse/fuse"

	nexusfs "github.com/nexi-lab/nexuskernel/internal/filesystem"
)

// CgoFuseFS implements the kernel filesystem using cgofuse, for
// cross-platform (macOS/Windows) mounts that hanwen/go-fuse doesn't
// cover.
type CgoFuseFS struct {
	fuse.FileSystemBase

	backend nexusfs.FilesystemInterface
	config  *Config

	mu      sync.RWMutex
	handles map[uint64]nexusfs.FileHandle
	nextFh  uint64

	host    *fuse.FileSystemHost
	mounted bool

	stats Stats
}

// NewCgoFuseFS creates a new cgofuse-based filesystem over backend.
func NewCgoFuseFS(backend nexusfs.FilesystemInterface, config *Config) *CgoFuseFS {
	return &CgoFuseFS{
		backend: backend,
		config:  config,
		handles: make(map[uint64]nexusfs.FileHandle),
		nextFh:  1,
	}
}

// Mount mounts the filesystem
func (cfs *CgoFuseFS) Mount(ctx context.Context) error {
	cfs.mu.Lock()
	defer cfs.mu.Unlock()

	if cfs.mounted {
		return fmt.Errorf("filesystem already mounted")
	}

	cfs.host = fuse.NewFileSystemHost(cfs)

	options := []string{
		"-o", "fsname=nexuskernel",
		"-o", "subtype=kernel",
		"-o", "allow_other",
	}

	switch {
	case strings.Contains(os.Getenv("GOOS"), "darwin"):
		options = append(options, "-o", "volname=NexusKernel")
	case strings.Contains(os.Getenv("GOOS"), "windows"):
		options = append(options, "-o", "FileSystemName=NexusKernel")
	}

	go func() {
		ret := cfs.host.Mount(cfs.config.MountPoint, options)
		if ret != 0 {
			log.Printf("Mount failed with code: %d", ret)
		}
	}()

	time.Sleep(100 * time.Millisecond)

	cfs.mounted = true
	log.Printf("nexuskernel mounted at: %s", cfs.config.MountPoint)
	return nil
}

// Unmount unmounts the filesystem
func (cfs *CgoFuseFS) Unmount() error {
	cfs.mu.Lock()
	defer cfs.mu.Unlock()

	if !cfs.mounted {
		return fmt.Errorf("filesystem not mounted")
	}

	if cfs.host != nil {
		ret := cfs.host.Unmount()
		if ret != 0 {
			return fmt.Errorf("unmount failed with code: %d", ret)
		}
	}

	cfs.mounted = false
	log.Printf("nexuskernel unmounted from: %s", cfs.config.MountPoint)
	return nil
}

// IsMounted returns whether the filesystem is mounted
func (cfs *CgoFuseFS) IsMounted() bool {
	cfs.mu.RLock()
	defer cfs.mu.RUnlock()
	return cfs.mounted
}

// FUSE Operations Implementation

func (cfs *CgoFuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	defer cfs.recordOperation("getattr", time.Now())

	if path == "/" {
		stat.Mode = fuse.S_IFDIR | 0755
		stat.Nlink = 2
		return 0
	}

	key := strings.TrimPrefix(path, "/")
	ctx := context.Background()

	info, err := cfs.backend.Stat(ctx, key)
	if err != nil {
		entries, listErr := cfs.backend.ReadDir(ctx, key)
		if listErr == nil && len(entries) >= 0 {
			stat.Mode = fuse.S_IFDIR | 0755
			stat.Nlink = 2
			return 0
		}
		return -fuse.ENOENT
	}

	cfs.fillStat(stat, info.Size(), info.ModTime())
	return 0
}

func (cfs *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	defer cfs.recordOperation("open", time.Now())

	key := strings.TrimPrefix(path, "/")
	handle, err := cfs.backend.Open(context.Background(), key, flags)
	if err != nil {
		return -fuse.ENOENT, 0
	}

	fh := atomic.AddUint64(&cfs.nextFh, 1)
	cfs.mu.Lock()
	cfs.handles[fh] = handle
	cfs.mu.Unlock()

	return 0, fh
}

func (cfs *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	start := time.Now()
	defer cfs.recordOperation("read", start)

	handle := cfs.handleFor(fh)
	if handle == nil {
		return -fuse.EIO
	}

	n, err := cfs.backend.Read(context.Background(), handle, buff, ofst)
	if err != nil {
		return -fuse.EIO
	}
	return n
}

func (cfs *CgoFuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	defer cfs.recordOperation("write", time.Now())

	handle := cfs.handleFor(fh)
	if handle == nil {
		return -fuse.EIO
	}

	n, err := cfs.backend.Write(context.Background(), handle, buff, ofst)
	if err != nil {
		return -fuse.EIO
	}
	return n
}

func (cfs *CgoFuseFS) Release(path string, fh uint64) int {
	defer cfs.recordOperation("release", time.Now())

	handle := cfs.handleFor(fh)
	if handle != nil {
		_ = cfs.backend.Close(context.Background(), handle)
	}

	cfs.mu.Lock()
	delete(cfs.handles, fh)
	cfs.mu.Unlock()

	return 0
}

func (cfs *CgoFuseFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	defer cfs.recordOperation("readdir", time.Now())

	fill(".", nil, 0)
	fill("..", nil, 0)

	key := strings.TrimPrefix(path, "/")
	entries, err := cfs.backend.ReadDir(context.Background(), key)
	if err != nil {
		return -fuse.EIO
	}

	for _, e := range entries {
		stat := &fuse.Stat_t{}
		if e.IsDir {
			stat.Mode = fuse.S_IFDIR | 0755
			stat.Nlink = 2
		} else {
			stat.Mode = fuse.S_IFREG | 0644
			stat.Size = e.Size
			stat.Nlink = 1
		}
		if !fill(e.Name, stat, 0) {
			break
		}
	}

	return 0
}

func (cfs *CgoFuseFS) handleFor(fh uint64) nexusfs.FileHandle {
	cfs.mu.RLock()
	defer cfs.mu.RUnlock()
	return cfs.handles[fh]
}

func (cfs *CgoFuseFS) fillStat(stat *fuse.Stat_t, size int64, modTime time.Time) {
	stat.Mode = fuse.S_IFREG | 0644
	stat.Size = size
	stat.Nlink = 1
	stat.Mtim.Sec = modTime.Unix()
	stat.Mtim.Nsec = modTime.UnixNano() % 1e9
}

func (cfs *CgoFuseFS) recordOperation(op string, start time.Time) {
	_ = op
	_ = time.Since(start)
}

// GetStats returns filesystem statistics
func (cfs *CgoFuseFS) GetStats() *FilesystemStats {
	return &FilesystemStats{}
}
