package types

import (
	"context"
	"testing"
	"time"
)

// TestInterfaces verifies that our interfaces are properly structured.
func TestInterfaces(t *testing.T) {
	var (
		_ CASBackend      = (*mockCASBackend)(nil)
		_ MetadataStore   = (*mockMetadataStore)(nil)
		_ ReplicatedLog   = (*mockReplicatedLog)(nil)
		_ ReBACEngine     = (*mockReBACEngine)(nil)
		_ EventBus        = (*mockEventBus)(nil)
		_ Cache           = (*mockCache)(nil)
		_ MetricsCollector = (*mockMetricsCollector)(nil)
		_ ConfigManager   = (*mockConfigManager)(nil)
		_ HealthChecker   = (*mockHealthChecker)(nil)
	)
}

type mockCASBackend struct{}

func (m *mockCASBackend) Put(ctx context.Context, data []byte) (string, error) { return "", nil }
func (m *mockCASBackend) Get(ctx context.Context, hash string) ([]byte, error) { return nil, nil }
func (m *mockCASBackend) Head(ctx context.Context, hash string) (*ContentObject, error) {
	return nil, nil
}
func (m *mockCASBackend) Delete(ctx context.Context, hash string) error        { return nil }
func (m *mockCASBackend) Exists(ctx context.Context, hash string) (bool, error) { return false, nil }
func (m *mockCASBackend) HealthCheck(ctx context.Context) error                { return nil }

type mockMetadataStore struct{}

func (m *mockMetadataStore) Get(ctx context.Context, path VirtualPath) (*FileMetadata, error) {
	return nil, nil
}
func (m *mockMetadataStore) Put(ctx context.Context, meta *FileMetadata, expectedETag string) error {
	return nil
}
func (m *mockMetadataStore) Delete(ctx context.Context, path VirtualPath, expectedETag string) error {
	return nil
}
func (m *mockMetadataStore) List(ctx context.Context, prefix VirtualPath, cursor string, limit int) ([]FileMetadata, string, error) {
	return nil, "", nil
}
func (m *mockMetadataStore) Versions(ctx context.Context, path VirtualPath) ([]VersionRecord, error) {
	return nil, nil
}

type mockReplicatedLog struct{}

func (m *mockReplicatedLog) Propose(ctx context.Context, command []byte) (uint64, error) {
	return 0, nil
}
func (m *mockReplicatedLog) Query(ctx context.Context) (uint64, error) { return 0, nil }
func (m *mockReplicatedLog) IsLeader() bool                           { return true }
func (m *mockReplicatedLog) LeaderAddress() string                    { return "" }

type mockReBACEngine struct{}

func (m *mockReBACEngine) Check(ctx context.Context, subject, permission, resourceType, resourceID, zone string) (bool, error) {
	return false, nil
}
func (m *mockReBACEngine) Expand(ctx context.Context, permission, resourceType, resourceID, zone string) ([]string, error) {
	return nil, nil
}
func (m *mockReBACEngine) Write(ctx context.Context, tuple ReBACTuple) error  { return nil }
func (m *mockReBACEngine) Delete(ctx context.Context, tuple ReBACTuple) error { return nil }

type mockEventBus struct{}

func (m *mockEventBus) WaitForChanges(ctx context.Context, pattern, zone string, sinceRevision uint64, timeout time.Duration) (*Event, error) {
	return nil, nil
}
func (m *mockEventBus) Publish(ctx context.Context, ev Event) error { return nil }
func (m *mockEventBus) Lock(ctx context.Context, path, holder string, timeout, ttl time.Duration, maxHolders int) (string, error) {
	return "", nil
}
func (m *mockEventBus) ExtendLock(ctx context.Context, lockID, path string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (m *mockEventBus) Unlock(ctx context.Context, lockID, path string) (bool, error) { return true, nil }

type mockCache struct{}

func (m *mockCache) Get(key string) (interface{}, bool)              { return nil, false }
func (m *mockCache) Put(key string, value interface{}, ttl time.Duration) {}
func (m *mockCache) Delete(key string)                                {}
func (m *mockCache) Evict(size int64) bool                            { return true }
func (m *mockCache) Size() int64                                      { return 0 }
func (m *mockCache) Stats() CacheStats                                { return CacheStats{} }

type mockMetricsCollector struct{}

func (m *mockMetricsCollector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
}
func (m *mockMetricsCollector) RecordCacheHit(cacheName string)  {}
func (m *mockMetricsCollector) RecordCacheMiss(cacheName string) {}
func (m *mockMetricsCollector) RecordError(operation string, err error) {}
func (m *mockMetricsCollector) GetMetrics() map[string]interface{} { return nil }

type mockConfigManager struct{}

func (m *mockConfigManager) Get(key string) interface{}       { return nil }
func (m *mockConfigManager) GetString(key string) string      { return "" }
func (m *mockConfigManager) GetInt(key string) int            { return 0 }
func (m *mockConfigManager) GetDuration(key string) time.Duration { return 0 }
func (m *mockConfigManager) GetBool(key string) bool          { return false }
func (m *mockConfigManager) Reload() error                    { return nil }

type mockHealthChecker struct{}

func (m *mockHealthChecker) Check(ctx context.Context) HealthStatus { return HealthStatus{} }
func (m *mockHealthChecker) RegisterCheck(name string, check func(context.Context) error) {}
func (m *mockHealthChecker) GetStatus() map[string]HealthStatus { return nil }
