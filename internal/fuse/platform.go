//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"context"

	nexusfs "github.com/nexi-lab/nexuskernel/internal/filesystem"
)

// Platform-specific filesystem interface
type PlatformFileSystem interface {
	Mount(ctx context.Context) error
	Unmount() error
	IsMounted() bool
	GetStats() *FilesystemStats
}

// CreatePlatformMountManager creates the appropriate mount manager for the platform
func CreatePlatformMountManager(backend nexusfs.FilesystemInterface, config *MountConfig) PlatformFileSystem {
	fuseConfig := &Config{
		MountPoint:  config.MountPoint,
		ReadOnly:    false,
		DefaultUID:  1000,
		DefaultGID:  1000,
		DefaultMode: 0644,
		CacheTTL:    60 * 1000000000, // 60 seconds in nanoseconds
	}

	filesystem := NewFileSystem(backend, fuseConfig)
	return NewMountManager(filesystem, config)
}
