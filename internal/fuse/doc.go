/*
Package fuse provides cross-platform FUSE filesystem access to the kernel
façade.

This package implements POSIX-compliant filesystem operations that translate
standard file and directory operations into calls against a
nexusfs.FilesystemInterface (internal/filesystem), which in turn is backed by
internal/kernel.Kernel's CAS storage, metadata store, and ReBAC engine. It
supports multiple FUSE implementations through build constraints, providing
compatibility across Linux, macOS, and Windows platforms.

# Architecture Overview

The FUSE layer acts as the bridge between POSIX applications and the kernel:

	┌─────────────────────────────────────────────┐
	│              User Applications              │
	│        (ls, cat, cp, vim, databases)       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              Kernel VFS Layer              │
	│           (POSIX System Calls)             │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│               FUSE Driver                   │
	│          (Platform-specific)               │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│             nexuskernel FUSE Layer          │  ← This Package
	│  ┌─────────────────────────────────────────┐  │
	│  │        Cross-Platform Abstraction      │  │
	│  │  ┌─────────────┐ ┌─────────────────┐   │  │
	│  │  │ go-fuse     │ │ cgofuse         │   │  │
	│  │  │ (Linux)     │ │ (macOS/Windows) │   │  │
	│  │  └─────────────┘ └─────────────────┘   │  │
	│  └─────────────────────────────────────────┘  │
	│                     │                       │
	│  ┌─────────────────────────────────────────┐  │
	│  │   nexusfs.FilesystemInterface adapter  │  │
	│  └─────────────────────────────────────────┘  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│     internal/kernel.Kernel (CAS + meta     │
	│       store + path router + ReBAC)         │
	└─────────────────────────────────────────────┘

# Platform Support

Multi-platform FUSE implementation with build constraints:

Default Build (go-fuse):
- Target: Linux (primary platform)
- Implementation: github.com/hanwen/go-fuse/v2
- Features: Full POSIX compliance

CGO Build (cgofuse):
- Target: macOS, Windows, Linux (fallback)
- Implementation: github.com/winfsp/cgofuse
- Features: Broader OS support, consistent behavior

Build Selection:

	// Linux, default go-fuse backend
	go build ./...

	// Cross-platform compatibility
	go build -tags cgofuse ./...

# FileSystem Operations

POSIX filesystem operations backed by the kernel façade:

File Operations:
- open(), read(), write(), close() - whole-file buffered I/O per handle
- flush() - writes the buffered handle contents back through Write()
- truncate() and fsync() are not handled: neither FUSE layer implements
  Setattr or Fsync

Directory Operations:
- opendir(), readdir(), closedir() - backed by Kernel.List's prefix listing
- mkdir() - a no-op; the metadata store has no separate directory record
- rename() - Kernel.Rename, preserving content hash and version history

Metadata Operations:
- stat(), fstat() - Kernel.Stat (metadata-only, no CAS read)

# Configuration

Flexible mount configuration options:

	config := &fuse.MountConfig{
		MountPoint: "/mnt/nexuskernel",
		Options: &fuse.MountOptions{
			ReadOnly:   false,
			AllowOther: true,
			AllowRoot:  false,

			// Performance tuning
			MaxRead:  128 * 1024, // 128KB read buffer
			MaxWrite: 128 * 1024, // 128KB write buffer

			// Caching
			AttrTimeout:  5 * time.Second,
			EntryTimeout: 10 * time.Second,

			// Platform-specific
			FSName:  "nexuskernel",
			Subtype: "kernel",
		},
		Permissions: &fuse.Permissions{
			UID:      1000,
			GID:      1000,
			FileMode: 0644,
			DirMode:  0755,
		},
	}

# Usage Examples

Basic filesystem mounting:

	// kernelFS adapts *kernel.Kernel to nexusfs.FilesystemInterface under
	// one fixed caller identity for the whole mount.
	kernelFS := filesystem.NewKernelFS(k, subject)

	// Create mount manager
	mountManager := fuse.CreatePlatformMountManager(kernelFS, config)

	// Mount filesystem
	err := mountManager.Mount(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer mountManager.Unmount()

File operations through mounted filesystem:

	// Standard POSIX operations work transparently

	// Create file
	file, err := os.Create("/mnt/nexuskernel/data.txt")
	if err != nil {
		log.Fatal(err)
	}

	// Write data
	_, err = file.WriteString("Hello, nexuskernel!")
	if err != nil {
		log.Fatal(err)
	}
	file.Close()

	// Read file
	data, err := os.ReadFile("/mnt/nexuskernel/data.txt")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Content: %s\n", data)

Directory operations:

	// Create directory
	err := os.Mkdir("/mnt/nexuskernel/logs", 0755)

	// List directory contents
	entries, err := os.ReadDir("/mnt/nexuskernel")
	for _, entry := range entries {
		info, _ := entry.Info()
		fmt.Printf("%s %d %v\n",
			entry.Name(),
			info.Size(),
			info.ModTime())
	}

# Caller Identity

KernelFS mounts the whole filesystem under a single types.Subject passed at
construction time; FUSE has no per-syscall caller identity without a
uid/gid-to-Subject mapping, which this package does not implement. A
multi-tenant mount would need that mapping layered in front of KernelFS.

# Whole-File Buffering

internal/kernel's CAS layer stores content-addressed whole blobs; there is no
byte-range read/write primitive. Each open file handle therefore buffers its
full contents in memory between Open and Flush/Close: Read and Write operate
on that buffer, and only Open (a full Read) and Flush/Close (a full Write)
round-trip through the kernel. This rules out the read-ahead and
write-coalescing strategies that make sense for range-fetchable remote
objects; they have no equivalent here.

# Error Handling

POSIX error mapping from kernel façade errors (see errno.go):

- pkg/errors.KindNotFound         → ENOENT
- pkg/errors.KindPermissionDenied → EACCES
- pkg/errors.KindConflict         → EEXIST
- pkg/errors.KindInvalidArgument  → EINVAL
- pkg/errors.KindTimeout          → ETIMEDOUT
- anything else                  → EIO

# Thread Safety

Designed for high-concurrency operation:

- All FUSE operations are inherently concurrent
- Thread-safe internal data structures
- Proper synchronization for shared resources

This package provides the bridge between standard POSIX applications and the
kernel façade, enabling transparent filesystem access to a permissioned,
versioned, content-addressed store through familiar filesystem interfaces.
*/
package fuse
