package types

import (
	"context"
	"time"
)

// CASBackend defines the content-addressed storage interface every CAS
// implementation (local passthrough, S3-backed) satisfies.
type CASBackend interface {
	// Put stores data, returning its content hash.
	Put(ctx context.Context, data []byte) (hash string, err error)
	// Get retrieves the blob for hash.
	Get(ctx context.Context, hash string) ([]byte, error)
	// Head returns metadata about hash without reading its bytes.
	Head(ctx context.Context, hash string) (*ContentObject, error)
	// Delete removes hash. Callers must have confirmed zero references.
	Delete(ctx context.Context, hash string) error
	// Exists reports whether hash is present.
	Exists(ctx context.Context, hash string) (bool, error)
	HealthCheck(ctx context.Context) error
}

// MetadataStore defines the path -> FileMetadata mapping maintained behind
// the replicated log.
type MetadataStore interface {
	Get(ctx context.Context, path VirtualPath) (*FileMetadata, error)
	Put(ctx context.Context, meta *FileMetadata, expectedETag string) error
	Delete(ctx context.Context, path VirtualPath, expectedETag string) error
	List(ctx context.Context, prefix VirtualPath, cursor string, limit int) ([]FileMetadata, string, error)
	Versions(ctx context.Context, path VirtualPath) ([]VersionRecord, error)
}

// ReplicatedLog defines the consensus contract a metadata store proposes
// writes through and queries commit state from.
type ReplicatedLog interface {
	Propose(ctx context.Context, command []byte) (index uint64, err error)
	Query(ctx context.Context) (committedIndex uint64, err error)
	IsLeader() bool
	LeaderAddress() string
}

// ReBACEngine defines the relationship-based access control contract.
type ReBACEngine interface {
	Check(ctx context.Context, subject, permission, resourceType, resourceID, zone string) (bool, error)
	Expand(ctx context.Context, permission, resourceType, resourceID, zone string) ([]string, error)
	Write(ctx context.Context, tuple ReBACTuple) error
	Delete(ctx context.Context, tuple ReBACTuple) error
}

// ReadSetRegistry tracks which queries read which paths/directories/zones
// so a write can invalidate exactly the queries affected by it.
type ReadSetRegistry interface {
	Register(ctx context.Context, entry ReadSetEntry) error
	Unregister(ctx context.Context, queryID string) error
	AffectedQueries(ctx context.Context, writePath VirtualPath, zone string) ([]string, error)
}

// EventBus defines the wait_for_changes / lock contract, satisfied by
// either the distributed gossip track or the same-box fsnotify track.
// pattern may be a literal path, a glob (*, ?), or a trailing "/" to match
// an entire directory subtree; sinceRevision excludes any event at or
// below that revision. WaitForChanges returns (nil, nil) on timeout or
// context cancellation, never an error for either.
type EventBus interface {
	WaitForChanges(ctx context.Context, pattern, zone string, sinceRevision uint64, timeout time.Duration) (*Event, error)
	Publish(ctx context.Context, ev Event) error
	Lock(ctx context.Context, path, holder string, timeout, ttl time.Duration, maxHolders int) (lockID string, err error)
	ExtendLock(ctx context.Context, lockID, path string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, lockID, path string) (bool, error)
}

// Cache defines the caching interface shared by the ReBAC check cache and
// bitmap cache.
type Cache interface {
	Get(key string) (interface{}, bool)
	Put(key string, value interface{}, ttl time.Duration)
	Delete(key string)
	Evict(size int64) bool
	Size() int64
	Stats() CacheStats
}

// CacheStats reports cache performance.
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

// MetricsCollector defines the metrics collection interface.
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordCacheHit(cacheName string)
	RecordCacheMiss(cacheName string)
	RecordError(operation string, err error)
	GetMetrics() map[string]interface{}
}

// ConfigManager defines configuration management interface.
type ConfigManager interface {
	Get(key string) interface{}
	GetString(key string) string
	GetInt(key string) int
	GetDuration(key string) time.Duration
	GetBool(key string) bool
	Reload() error
}

// HealthStatus represents the health status of a component.
type HealthStatus struct {
	Status     string            `json:"status"`
	LastCheck  time.Time         `json:"last_check"`
	Response   time.Duration     `json:"response_time"`
	ErrorCount int64             `json:"error_count"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details"`
}

// HealthChecker defines health monitoring interface.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
	RegisterCheck(name string, check func(context.Context) error)
	GetStatus() map[string]HealthStatus
}
