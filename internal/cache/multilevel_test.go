package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNewMultiLevelCache_Defaults(t *testing.T) {
	cache, err := NewMultiLevelCache(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cache.levels) != 1 {
		t.Fatalf("expected only L1 enabled by default, got %d levels", len(cache.levels))
	}
	if cache.levels[0].Name != "L1" {
		t.Errorf("expected L1 as first level, got %s", cache.levels[0].Name)
	}
}

func TestMultiLevelCache_InclusivePolicyStoresInAllLevels(t *testing.T) {
	cache, err := NewMultiLevelCache(&MultiLevelConfig{
		L1Config: &L1Config{Enabled: true, Size: 1024, MaxEntries: 100, TTL: time.Hour},
		L2Config: &L2Config{Enabled: true, Size: 1024 * 1024, Directory: filepath.Join(t.TempDir(), "l2")},
		Policy:   "inclusive",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cache.Put("allow:alice:viewer:/a", true, 0)

	for _, level := range cache.levels {
		if _, ok := level.Cache.Get("allow:alice:viewer:/a"); !ok {
			t.Errorf("expected level %s to hold the value under inclusive policy", level.Name)
		}
	}
}

func TestMultiLevelCache_ExclusivePolicyStoresOnlyInL1(t *testing.T) {
	cache, err := NewMultiLevelCache(&MultiLevelConfig{
		L1Config: &L1Config{Enabled: true, Size: 1024, MaxEntries: 100, TTL: time.Hour},
		L2Config: &L2Config{Enabled: true, Size: 1024 * 1024, Directory: filepath.Join(t.TempDir(), "l2")},
		Policy:   "exclusive",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cache.Put("k", "v", 0)

	if _, ok := cache.levels[0].Cache.Get("k"); !ok {
		t.Error("expected L1 to hold the value")
	}
	if _, ok := cache.levels[1].Cache.Get("k"); ok {
		t.Error("expected L2 to not hold the value under exclusive policy")
	}
}

func TestMultiLevelCache_GetPromotesFromL2ToL1(t *testing.T) {
	cache, err := NewMultiLevelCache(&MultiLevelConfig{
		L1Config: &L1Config{Enabled: true, Size: 1024, MaxEntries: 100, TTL: time.Hour},
		L2Config: &L2Config{Enabled: true, Size: 1024 * 1024, Directory: filepath.Join(t.TempDir(), "l2")},
		Policy:   "exclusive",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cache.levels[1].Cache.Put("k", "v", 0)

	value, ok := cache.Get("k")
	if !ok || value != "v" {
		t.Fatalf("expected hit from L2, got %v ok=%v", value, ok)
	}

	if _, ok := cache.levels[0].Cache.Get("k"); !ok {
		t.Error("expected value promoted to L1 after L2 hit")
	}
}

func TestMultiLevelCache_Stats(t *testing.T) {
	cache, err := NewMultiLevelCache(&MultiLevelConfig{
		L1Config: &L1Config{Enabled: true, Size: 1024, MaxEntries: 100, TTL: time.Hour},
		Policy:   "inclusive",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cache.Put("k", "v", 0)
	cache.Get("k")
	cache.Get("missing")

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("unexpected combined stats: %+v", stats)
	}
}

func TestMultiLevelCache_EnableDisableLevel(t *testing.T) {
	cache, err := NewMultiLevelCache(&MultiLevelConfig{
		L1Config: &L1Config{Enabled: true, Size: 1024, MaxEntries: 100, TTL: time.Hour},
		Policy:   "inclusive",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := cache.DisableLevel("L1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.levels[0].Enabled {
		t.Error("expected L1 disabled")
	}

	if err := cache.EnableLevel("L1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cache.levels[0].Enabled {
		t.Error("expected L1 re-enabled")
	}

	if err := cache.EnableLevel("L3"); err == nil {
		t.Error("expected error enabling unknown level")
	}
}
