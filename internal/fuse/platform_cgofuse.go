//go:build cgofuse
// +build cgofuse

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

// CreatePlatformMountManager creates the cgofuse mount manager
func CreatePlatformMountManager(backend nexusfs.FilesystemInterface, config *MountConfig) PlatformFileSystem {
	return NewCgoFuseMountManager(backend, config)
}
