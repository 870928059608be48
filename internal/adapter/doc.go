/*
Package adapter provides the orchestration component that wires a kernel.Kernel
to a mounted filesystem.

The Adapter is the main coordination point for a mount: it owns the cluster,
the kernel façade, and the platform-specific FUSE mount manager, and drives
them through a single construct-then-Start/Stop lifecycle.

# Architecture Role

	┌─────────────────────────────────────────────┐
	│                 Client Apps                 │
	│            (ls, cp, cat, etc.)               │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│            Kernel VFS/FUSE                  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              ADAPTER LAYER                  │ ← This Package
	│  • Component Orchestration                   │
	│  • Lifecycle Management                      │
	│  • Configuration Integration                 │
	└─────────────────────────────────────────────┘
	        │                 │                │
	┌───────┴───┐     ┌───────┴───┐     ┌──────┴──────┐
	│  Cluster  │     │  Kernel   │     │ Mount Manager│
	│ (raft/    │     │ (CAS +    │     │   (FUSE)     │
	│  events)  │     │ metadata) │     │              │
	└───────────┘     └───────────┘     └──────────────┘

# Component Integration

The Adapter manages three core subsystems:

Cluster:
Provides the event bus and leader coordination the kernel needs for cache
invalidation and ReBAC propagation across nodes.

Kernel:
The façade over CAS storage, the metadata store, the path router and the
ReBAC engine. All filesystem operations funnel through it.

Mount Manager:
Coordinates the cross-platform FUSE implementation (hanwen/go-fuse by
default, cgofuse when built with -tags cgofuse) that exposes the kernel as a
POSIX filesystem.

# Lifecycle Management

Startup Sequence:
 1. Configuration validation
 2. Cluster construction and start
 3. Kernel construction
 4. Filesystem adapter construction (kernel bound to one caller Subject)
 5. FUSE mount

Shutdown Sequence:
 1. FUSE unmount
 2. Cluster stop

# Usage Example

	adapter, err := adapter.New(ctx, "/mnt/data", cfg, subject)
	if err != nil {
		log.Fatal(err)
	}

	if err := adapter.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer adapter.Stop(ctx)

	// ls /mnt/data
	// cat /mnt/data/file.txt

# Caller Identity

FUSE has no per-syscall caller identity without a uid/gid-to-Subject mapping,
so a mounted adapter runs every operation as the one Subject passed to New.

# Error Handling

Start and Stop wrap component errors with context (cluster, kernel, mount)
and Stop continues best-effort through failures so that every component
gets a chance to shut down.
*/
package adapter
