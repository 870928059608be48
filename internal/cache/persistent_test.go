package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestPersistentCache(t *testing.T) *PersistentCache {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "cache")
	cache, err := NewPersistentCache(&PersistentCacheConfig{
		Directory:   dir,
		MaxSize:     1024 * 1024,
		TTL:         time.Hour,
		Compression: true,
	})
	if err != nil {
		t.Fatalf("NewPersistentCache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestPersistentCache_PutGet(t *testing.T) {
	cache := newTestPersistentCache(t)

	cache.Put("allow:alice:owner:/a", true, 0)

	value, ok := cache.Get("allow:alice:owner:/a")
	if !ok {
		t.Fatal("expected hit")
	}
	if value != true {
		t.Errorf("expected true, got %v", value)
	}
}

func TestPersistentCache_GetMiss(t *testing.T) {
	cache := newTestPersistentCache(t)

	if _, ok := cache.Get("missing"); ok {
		t.Error("expected miss")
	}
}

func TestPersistentCache_Delete(t *testing.T) {
	cache := newTestPersistentCache(t)

	cache.Put("k", "v", 0)
	cache.Delete("k")

	if _, ok := cache.Get("k"); ok {
		t.Error("expected entry removed")
	}
}

func TestPersistentCache_TTLExpiry(t *testing.T) {
	cache := newTestPersistentCache(t)

	cache.Put("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := cache.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestPersistentCache_SurvivesReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	cache, err := NewPersistentCache(&PersistentCacheConfig{Directory: dir, MaxSize: 1024 * 1024, TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewPersistentCache: %v", err)
	}
	cache.Put("k", "v", 0)
	if err := cache.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewPersistentCache(&PersistentCacheConfig{Directory: dir, MaxSize: 1024 * 1024, TTL: time.Hour})
	if err != nil {
		t.Fatalf("reopen NewPersistentCache: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	value, ok := reopened.Get("k")
	if !ok || value != "v" {
		t.Fatalf("expected reloaded entry, got %v ok=%v", value, ok)
	}
}

func TestPersistentCache_RejectsIndexPathEscape(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	_, err := NewPersistentCache(&PersistentCacheConfig{
		Directory: dir,
		MaxSize:   1024,
		IndexFile: "../escape.json",
	})
	if err == nil {
		t.Error("expected error for index file escaping cache directory")
	}
}

func TestPersistentCache_Clear(t *testing.T) {
	cache := newTestPersistentCache(t)
	cache.Put("a", "x", 0)
	cache.Put("b", "x", 0)

	cache.Clear()

	if cache.Size() != 0 {
		t.Errorf("expected empty cache after clear, got %d", cache.Size())
	}
	entries, err := os.ReadDir(cache.directory)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".cache" {
			t.Errorf("expected no leftover cache files, found %s", e.Name())
		}
	}
}
