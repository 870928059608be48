package fuse

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	nexusfs "github.com/nexi-lab/nexuskernel/internal/filesystem"
)

// safeInt64ToUint64 safely converts int64 to uint64, preventing negative values
func safeInt64ToUint64(i int64) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

// safeIntToUint32 safely converts int to uint32, preventing overflow
func safeIntToUint32(i int) uint32 {
	if i < 0 {
		return 0
	}
	if i > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(i)
}

// FileSystem implements the FUSE filesystem interface over a
// filesystem.FilesystemInterface - every inode operation below is a thin
// translation to one of its calls, which themselves thread straight
// through to the kernel façade.
type FileSystem struct {
	fs.Inode

	backend nexusfs.FilesystemInterface

	config *Config

	mu sync.RWMutex

	stats *Stats
}

// Config represents FUSE filesystem configuration
type Config struct {
	MountPoint string `yaml:"mount_point"`
	ReadOnly   bool   `yaml:"read_only"`
	AllowOther bool   `yaml:"allow_other"`

	DirectIO  bool   `yaml:"direct_io"`
	KeepCache bool   `yaml:"keep_cache"`
	BigWrites bool   `yaml:"big_writes"`
	MaxRead   uint32 `yaml:"max_read"`
	MaxWrite  uint32 `yaml:"max_write"`

	DefaultUID  uint32        `yaml:"default_uid"`
	DefaultGID  uint32        `yaml:"default_gid"`
	DefaultMode uint32        `yaml:"default_mode"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`

	Concurrency int `yaml:"concurrency"`
}

// Stats tracks filesystem operation statistics
type Stats struct {
	mu sync.RWMutex

	Lookups int64 `json:"lookups"`
	Opens   int64 `json:"opens"`
	Reads   int64 `json:"reads"`
	Writes  int64 `json:"writes"`
	Creates int64 `json:"creates"`
	Deletes int64 `json:"deletes"`

	BytesRead    int64 `json:"bytes_read"`
	BytesWritten int64 `json:"bytes_written"`

	Errors int64 `json:"errors"`

	AvgReadTime   time.Duration `json:"avg_read_time"`
	AvgWriteTime  time.Duration `json:"avg_write_time"`
	AvgLookupTime time.Duration `json:"avg_lookup_time"`
}

// NewFileSystem creates a new FUSE filesystem instance over backend.
func NewFileSystem(backend nexusfs.FilesystemInterface, config *Config) *FileSystem {
	if config == nil {
		config = &Config{
			DefaultUID:  1000,
			DefaultGID:  1000,
			DefaultMode: 0644,
			CacheTTL:    5 * time.Minute,
			Concurrency: 16,
		}
	}

	return &FileSystem{
		backend: backend,
		config:  config,
		stats:   &Stats{},
	}
}

// Root returns the root inode
func (fs *FileSystem) Root() fs.InodeEmbedder {
	return &DirectoryNode{
		fs:   fs,
		path: "",
	}
}

// GetStats returns current filesystem statistics
func (fs *FileSystem) GetStats() *Stats {
	fs.stats.mu.RLock()
	defer fs.stats.mu.RUnlock()

	return &Stats{
		Lookups:      fs.stats.Lookups,
		Opens:        fs.stats.Opens,
		Reads:        fs.stats.Reads,
		Writes:       fs.stats.Writes,
		BytesRead:    fs.stats.BytesRead,
		BytesWritten: fs.stats.BytesWritten,
		Errors:       fs.stats.Errors,
	}
}

// DirectoryNode represents a directory in the filesystem
type DirectoryNode struct {
	fs.Inode
	fs   *FileSystem
	path string
}

// Lookup looks up a child node by name
func (n *DirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	start := time.Now()
	defer func() { n.fs.recordLookupTime(time.Since(start)) }()

	n.fs.stats.mu.Lock()
	n.fs.stats.Lookups++
	n.fs.stats.mu.Unlock()

	childPath := n.joinPath(name)

	info, err := n.fs.backend.Stat(ctx, childPath)
	if err != nil {
		n.fs.stats.mu.Lock()
		n.fs.stats.Errors++
		n.fs.stats.mu.Unlock()

		entries, listErr := n.fs.backend.ReadDir(ctx, childPath)
		if listErr != nil || len(entries) == 0 {
			return nil, errnoFor(err)
		}
		return n.createDirectoryNode(name, childPath), 0
	}

	if info.IsDir() {
		return n.createDirectoryNode(name, childPath), 0
	}
	return n.createChildNode(name, childPath), 0
}

// Readdir reads directory contents
func (n *DirectoryNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.fs.backend.ReadDir(ctx, n.path)
	if err != nil {
		n.fs.stats.mu.Lock()
		n.fs.stats.Errors++
		n.fs.stats.mu.Unlock()

		log.Printf("Readdir failed for %s: %v", n.path, err)
		return nil, errnoFor(err)
	}

	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(fuse.S_IFREG)
		if e.IsDir {
			mode = fuse.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}

	return fs.NewListDirStream(out), 0
}

// Mkdir creates a new directory
func (n *DirectoryNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if n.fs.config.ReadOnly {
		return nil, syscall.EROFS
	}

	childPath := n.joinPath(name)
	if err := n.fs.backend.Mkdir(ctx, childPath, 0); err != nil {
		n.fs.stats.mu.Lock()
		n.fs.stats.Errors++
		n.fs.stats.mu.Unlock()
		return nil, errnoFor(err)
	}

	return n.createDirectoryNode(name, childPath), 0
}

// Create creates a new file
func (n *DirectoryNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (node *fs.Inode, fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	if n.fs.config.ReadOnly {
		return nil, nil, 0, syscall.EROFS
	}

	childPath := n.joinPath(name)

	n.fs.stats.mu.Lock()
	n.fs.stats.Creates++
	n.fs.stats.mu.Unlock()

	fileNode := &FileNode{fs: n.fs, path: childPath}
	node = n.NewInode(ctx, fileNode, fs.StableAttr{Mode: fuse.S_IFREG})

	fh, fuseFlags, errno = fileNode.Open(ctx, flags)
	return node, fh, fuseFlags, errno
}

// Unlink removes a file
func (n *DirectoryNode) Unlink(ctx context.Context, name string) syscall.Errno {
	if n.fs.config.ReadOnly {
		return syscall.EROFS
	}
	if err := n.fs.backend.Remove(ctx, n.joinPath(name)); err != nil {
		return errnoFor(err)
	}
	n.fs.stats.mu.Lock()
	n.fs.stats.Deletes++
	n.fs.stats.mu.Unlock()
	return 0
}

// Rename moves a node to a new name, possibly under a different parent.
func (n *DirectoryNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if n.fs.config.ReadOnly {
		return syscall.EROFS
	}
	dest, ok := newParent.(*DirectoryNode)
	if !ok {
		return syscall.EINVAL
	}
	if err := n.fs.backend.Rename(ctx, n.joinPath(name), dest.joinPath(newName)); err != nil {
		return errnoFor(err)
	}
	return 0
}

// FileNode represents a file in the filesystem
type FileNode struct {
	fs.Inode
	fs   *FileSystem
	path string
}

// Open opens a file
func (f *FileNode) Open(ctx context.Context, flags uint32) (fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	f.fs.stats.mu.Lock()
	f.fs.stats.Opens++
	f.fs.stats.mu.Unlock()

	if f.fs.config.ReadOnly && (flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_CREAT|syscall.O_TRUNC) != 0) {
		return nil, 0, syscall.EROFS
	}

	handle, err := f.fs.backend.Open(ctx, f.path, int(flags))
	if err != nil {
		return nil, 0, errnoFor(err)
	}

	return &FileHandle{fs: f.fs, path: f.path, handle: handle}, 0, 0
}

// Getattr gets file attributes
func (f *FileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	info, err := f.fs.backend.Stat(ctx, f.path)
	if err != nil {
		return errnoFor(err)
	}
	out.Mode = f.fs.config.DefaultMode
	out.Size = safeInt64ToUint64(info.Size())
	out.Uid = f.fs.config.DefaultUID
	out.Gid = f.fs.config.DefaultGID

	unixTime := info.ModTime().Unix()
	out.Mtime = safeInt64ToUint64(unixTime)
	out.Atime = safeInt64ToUint64(unixTime)
	out.Ctime = safeInt64ToUint64(unixTime)

	return 0
}

// FileHandle represents an open file handle
type FileHandle struct {
	fs     *FileSystem
	path   string
	handle nexusfs.FileHandle
}

// Read reads data from the file
func (fh *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	start := time.Now()
	defer func() { fh.fs.recordReadTime(time.Since(start)) }()

	fh.fs.stats.mu.Lock()
	fh.fs.stats.Reads++
	fh.fs.stats.mu.Unlock()

	n, err := fh.fs.backend.Read(ctx, fh.handle, dest, off)
	if err != nil {
		fh.fs.stats.mu.Lock()
		fh.fs.stats.Errors++
		fh.fs.stats.mu.Unlock()
		log.Printf("Read failed for %s at offset %d: %v", fh.path, off, err)
		return nil, errnoFor(err)
	}

	fh.fs.stats.mu.Lock()
	fh.fs.stats.BytesRead += int64(n)
	fh.fs.stats.mu.Unlock()

	return fuse.ReadResultData(dest[:n]), 0
}

// Write writes data to the file
func (fh *FileHandle) Write(ctx context.Context, data []byte, off int64) (written uint32, errno syscall.Errno) {
	if fh.fs.config.ReadOnly {
		return 0, syscall.EROFS
	}

	start := time.Now()
	defer func() { fh.fs.recordWriteTime(time.Since(start)) }()

	n, err := fh.fs.backend.Write(ctx, fh.handle, data, off)
	if err != nil {
		fh.fs.stats.mu.Lock()
		fh.fs.stats.Errors++
		fh.fs.stats.mu.Unlock()
		log.Printf("Write failed for %s at offset %d: %v", fh.path, off, err)
		return 0, errnoFor(err)
	}

	fh.fs.stats.mu.Lock()
	fh.fs.stats.Writes++
	fh.fs.stats.BytesWritten += int64(n)
	fh.fs.stats.mu.Unlock()

	return safeIntToUint32(n), 0
}

// Flush flushes any pending writes
func (fh *FileHandle) Flush(ctx context.Context) syscall.Errno {
	if err := fh.fs.backend.Flush(ctx, fh.handle); err != nil {
		fh.fs.stats.mu.Lock()
		fh.fs.stats.Errors++
		fh.fs.stats.mu.Unlock()
		log.Printf("Flush failed for %s: %v", fh.path, err)
		return errnoFor(err)
	}
	return 0
}

// Release releases the file handle
func (fh *FileHandle) Release(ctx context.Context) syscall.Errno {
	if err := fh.fs.backend.Close(ctx, fh.handle); err != nil {
		return errnoFor(err)
	}
	return 0
}

// Helper methods for DirectoryNode

func (n *DirectoryNode) joinPath(name string) string {
	if n.path == "" {
		return name
	}
	return filepath.Join(n.path, name)
}

func (n *DirectoryNode) createChildNode(name, path string) *fs.Inode {
	fileNode := &FileNode{fs: n.fs, path: path}
	return n.NewInode(context.Background(), fileNode, fs.StableAttr{Mode: fuse.S_IFREG})
}

func (n *DirectoryNode) createDirectoryNode(name, path string) *fs.Inode {
	dirNode := &DirectoryNode{fs: n.fs, path: path}
	return n.NewInode(context.Background(), dirNode, fs.StableAttr{Mode: fuse.S_IFDIR})
}

// Helper methods for FileSystem

func (fs *FileSystem) recordLookupTime(duration time.Duration) {
	fs.stats.mu.Lock()
	defer fs.stats.mu.Unlock()
	if fs.stats.Lookups == 1 {
		fs.stats.AvgLookupTime = duration
	} else {
		fs.stats.AvgLookupTime = time.Duration((int64(fs.stats.AvgLookupTime)*9 + int64(duration)) / 10)
	}
}

func (fs *FileSystem) recordReadTime(duration time.Duration) {
	fs.stats.mu.Lock()
	defer fs.stats.mu.Unlock()
	if fs.stats.Reads == 1 {
		fs.stats.AvgReadTime = duration
	} else {
		fs.stats.AvgReadTime = time.Duration((int64(fs.stats.AvgReadTime)*9 + int64(duration)) / 10)
	}
}

func (fs *FileSystem) recordWriteTime(duration time.Duration) {
	fs.stats.mu.Lock()
	defer fs.stats.mu.Unlock()
	if fs.stats.Writes == 1 {
		fs.stats.AvgWriteTime = duration
	} else {
		fs.stats.AvgWriteTime = time.Duration((int64(fs.stats.AvgWriteTime)*9 + int64(duration)) / 10)
	}
}
