package adapter

import (
	"context"
	"fmt"
	"log"

	"github.com/nexi-lab/nexuskernel/internal/cluster"
	"github.com/nexi-lab/nexuskernel/internal/config"
	nexusfs "github.com/nexi-lab/nexuskernel/internal/filesystem"
	"github.com/nexi-lab/nexuskernel/internal/fuse"
	"github.com/nexi-lab/nexuskernel/internal/kernel"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// Adapter wires a kernel.Kernel to a mounted filesystem. It owns the
// component construction order the teacher's adapter used for its S3
// backend/cache/write-buffer/metrics stack: cluster, kernel, filesystem
// adapter, mount manager.
type Adapter struct {
	mountPoint string
	config     *config.Configuration
	subject    types.Subject

	cluster  *cluster.Cluster
	kernel   *kernel.Kernel
	mountMgr fuse.PlatformFileSystem

	started bool
}

// New creates a new adapter instance bound to mountPoint and cfg. subject
// is the caller identity every operation through the mount runs as; FUSE
// has no per-syscall caller identity without a uid/gid-to-Subject mapping,
// so the whole mount runs as one subject.
func New(ctx context.Context, mountPoint string, cfg *config.Configuration, subject types.Subject) (*Adapter, error) {
	if mountPoint == "" {
		return nil, fmt.Errorf("mount point cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Adapter{
		mountPoint: mountPoint,
		config:     cfg,
		subject:    subject,
	}, nil
}

// Start initializes the kernel and mounts the filesystem.
func (a *Adapter) Start(ctx context.Context) error {
	if a.started {
		return fmt.Errorf("adapter already started")
	}

	log.Printf("Starting nexuskernel adapter...")
	log.Printf("Mount Point: %s", a.mountPoint)
	log.Printf("CAS Backend: %s", a.config.CAS.Backend)
	log.Printf("Metadata Store Backend: %s", a.config.MetadataStore.Backend)

	clusterCfg := cluster.FromKernelConfig(a.config.Cluster, a.config.Events)
	cl, err := cluster.New(clusterCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize cluster: %w", err)
	}
	if err := cl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cluster: %w", err)
	}
	a.cluster = cl

	k, err := kernel.New(ctx, a.config, cl)
	if err != nil {
		return fmt.Errorf("failed to initialize kernel: %w", err)
	}
	a.kernel = k

	kernelFS := nexusfs.NewKernelFS(k, a.subject)

	mountConfig := &fuse.MountConfig{
		MountPoint: a.mountPoint,
		Options: &fuse.MountOptions{
			FSName:   "nexuskernel",
			Subtype:  "kernel",
			MaxRead:  128 * 1024,
			MaxWrite: 128 * 1024,
			Debug:    false,
		},
	}

	a.mountMgr = fuse.CreatePlatformMountManager(kernelFS, mountConfig)

	if err := a.mountMgr.Mount(ctx); err != nil {
		return fmt.Errorf("failed to mount filesystem: %w", err)
	}

	a.started = true
	log.Printf("nexuskernel adapter started successfully")
	return nil
}

// Stop gracefully unmounts the filesystem.
func (a *Adapter) Stop(ctx context.Context) error {
	if !a.started {
		return fmt.Errorf("adapter not started")
	}

	log.Printf("Stopping nexuskernel adapter...")

	var lastErr error
	if a.mountMgr != nil && a.mountMgr.IsMounted() {
		if err := a.mountMgr.Unmount(); err != nil {
			log.Printf("Error unmounting filesystem: %v", err)
			lastErr = err
		}
	}

	if a.cluster != nil {
		if err := a.cluster.Stop(); err != nil {
			log.Printf("Error stopping cluster: %v", err)
			lastErr = err
		}
	}

	a.started = false
	log.Printf("nexuskernel adapter stopped successfully")
	return lastErr
}
