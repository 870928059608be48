package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// MultiLevelCache implements a multi-level cache hierarchy (in-memory L1
// over an optional on-disk L2), satisfying types.Cache. Grounded on the
// teacher's multi-level byte-range cache: same level/promotion/policy
// machinery, regeneralized to single values with a per-entry TTL instead
// of offset-keyed byte ranges.
type MultiLevelCache struct {
	mu      sync.RWMutex
	statsMu sync.Mutex
	levels  []CacheLevel
	config  *MultiLevelConfig
	stats   MultiLevelStats
}

// CacheLevel represents a single level in the cache hierarchy
type CacheLevel struct {
	Name     string
	Cache    types.Cache
	Priority int
	Enabled  bool
}

// MultiLevelConfig represents multi-level cache configuration
type MultiLevelConfig struct {
	L1Config *L1Config `yaml:"l1"`
	L2Config *L2Config `yaml:"l2"`
	Policy   string    `yaml:"policy"`
}

// L1Config represents L1 (memory) cache configuration
type L1Config struct {
	Enabled    bool          `yaml:"enabled"`
	Size       int64         `yaml:"size"`
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
	// Predict wraps L1 with a PredictiveCache that fires OnHighTraffic
	// for keys crossing the confidence threshold. Left nil, L1 is a
	// plain LRUCache.
	Predict       *PredictiveCacheConfig
	OnHighTraffic func(key string)
}

// L2Config represents L2 (persistent) cache configuration
type L2Config struct {
	Enabled     bool          `yaml:"enabled"`
	Size        int64         `yaml:"size"`
	Directory   string        `yaml:"directory"`
	TTL         time.Duration `yaml:"ttl"`
	Compression bool          `yaml:"compression"`
}

// MultiLevelStats tracks multi-level cache statistics
type MultiLevelStats struct {
	TotalHits   uint64                      `json:"total_hits"`
	TotalMisses uint64                      `json:"total_misses"`
	LevelStats  map[string]types.CacheStats `json:"level_stats"`
	HitRatio    float64                     `json:"hit_ratio"`
	Efficiency  float64                     `json:"efficiency"`
}

// NewMultiLevelCache creates a new multi-level cache
func NewMultiLevelCache(config *MultiLevelConfig) (*MultiLevelCache, error) {
	if config == nil {
		config = &MultiLevelConfig{
			L1Config: &L1Config{
				Enabled:    true,
				Size:       64 * 1024 * 1024,
				MaxEntries: 100000,
				TTL:        5 * time.Minute,
			},
			L2Config: &L2Config{
				Enabled:     false,
				Size:        512 * 1024 * 1024,
				Directory:   "/tmp/nexuskernel-cache",
				TTL:         1 * time.Hour,
				Compression: true,
			},
			Policy: "inclusive",
		}
	}

	cache := &MultiLevelCache{
		config: config,
		stats: MultiLevelStats{
			LevelStats: make(map[string]types.CacheStats),
		},
	}

	if err := cache.initializeLevels(); err != nil {
		return nil, fmt.Errorf("failed to initialize cache levels: %w", err)
	}

	return cache, nil
}

// Get retrieves a value from the cache hierarchy, promoting it to
// higher levels on a hit at a lower one.
func (c *MultiLevelCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, level := range c.levels {
		if !level.Enabled {
			continue
		}

		value, ok := level.Cache.Get(key)
		if ok {
			c.recordHit(level.Name)

			if i > 0 {
				c.promoteToHigherLevels(key, value, i-1)
			}

			return value, true
		}
	}

	c.recordMiss()
	return nil, false
}

// Put stores value in the cache hierarchy per the configured policy.
func (c *MultiLevelCache) Put(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.config.Policy {
	case "exclusive":
		if len(c.levels) > 0 && c.levels[0].Enabled {
			c.levels[0].Cache.Put(key, value, ttl)
		}
	case "hybrid":
		c.hybridPut(key, value, ttl)
	default: // inclusive
		for _, level := range c.levels {
			if level.Enabled {
				level.Cache.Put(key, value, ttl)
			}
		}
	}
}

// Delete removes data from all cache levels
func (c *MultiLevelCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, level := range c.levels {
		if level.Enabled {
			level.Cache.Delete(key)
		}
	}
}

// Evict evicts data from cache levels to free space
func (c *MultiLevelCache) Evict(size int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	totalEvicted := int64(0)

	for _, level := range c.levels {
		if !level.Enabled {
			continue
		}

		if level.Cache.Evict(size - totalEvicted) {
			totalEvicted = size
			break
		}

		levelStats := level.Cache.Stats()
		totalEvicted += levelStats.Size
	}

	return totalEvicted >= size
}

// Size returns total size across all cache levels
func (c *MultiLevelCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	totalSize := int64(0)
	for _, level := range c.levels {
		if level.Enabled {
			totalSize += level.Cache.Size()
		}
	}

	return totalSize
}

// Stats returns combined statistics from all cache levels
func (c *MultiLevelCache) Stats() types.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	combined := types.CacheStats{}

	for _, level := range c.levels {
		if !level.Enabled {
			continue
		}

		levelStats := level.Cache.Stats()
		func() {
			c.statsMu.Lock()
			defer c.statsMu.Unlock()
			c.stats.LevelStats[level.Name] = levelStats
		}()

		combined.Hits += levelStats.Hits
		combined.Misses += levelStats.Misses
		combined.Evictions += levelStats.Evictions
		combined.Size += levelStats.Size
		combined.Capacity += levelStats.Capacity
	}

	total := combined.Hits + combined.Misses
	if total > 0 {
		combined.HitRate = float64(combined.Hits) / float64(total)
	}

	if combined.Capacity > 0 {
		combined.Utilization = float64(combined.Size) / float64(combined.Capacity)
	}

	return combined
}

// GetLevelStats returns statistics for a specific cache level
func (c *MultiLevelCache) GetLevelStats(levelName string) (types.CacheStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, level := range c.levels {
		if level.Name == levelName && level.Enabled {
			return level.Cache.Stats(), nil
		}
	}

	return types.CacheStats{}, fmt.Errorf("cache level %s not found or not enabled", levelName)
}

// Optimize runs cache optimization routines on every level that
// supports it.
func (c *MultiLevelCache) Optimize() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, level := range c.levels {
		if !level.Enabled {
			continue
		}

		if optimizer, ok := level.Cache.(CacheOptimizer); ok {
			optimizer.Optimize()
		}
	}

	c.updateEfficiencyMetrics()
}

// Helper methods

func (c *MultiLevelCache) initializeLevels() error {
	c.levels = make([]CacheLevel, 0, 2)

	if c.config.L1Config != nil && c.config.L1Config.Enabled {
		l1Cache := NewLRUCache(&CacheConfig{
			MaxSize:    c.config.L1Config.Size,
			MaxEntries: c.config.L1Config.MaxEntries,
			TTL:        c.config.L1Config.TTL,
		})

		var finalCache types.Cache = l1Cache
		if c.config.L1Config.Predict != nil {
			finalCache = NewPredictiveCache(l1Cache, c.config.L1Config.Predict, c.config.L1Config.OnHighTraffic)
		}

		c.levels = append(c.levels, CacheLevel{
			Name:     "L1",
			Cache:    finalCache,
			Priority: 1,
			Enabled:  true,
		})
	}

	if c.config.L2Config != nil && c.config.L2Config.Enabled {
		l2Cache, err := NewPersistentCache(&PersistentCacheConfig{
			Directory:   c.config.L2Config.Directory,
			MaxSize:     c.config.L2Config.Size,
			TTL:         c.config.L2Config.TTL,
			Compression: c.config.L2Config.Compression,
		})
		if err != nil {
			return fmt.Errorf("failed to create L2 cache: %w", err)
		}

		c.levels = append(c.levels, CacheLevel{
			Name:     "L2",
			Cache:    l2Cache,
			Priority: 2,
			Enabled:  true,
		})
	}

	return nil
}

func (c *MultiLevelCache) recordHit(levelName string) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.TotalHits++
	c.updateHitRatioUnsafe()
}

func (c *MultiLevelCache) recordMiss() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats.TotalMisses++
	c.updateHitRatioUnsafe()
}

func (c *MultiLevelCache) updateHitRatioUnsafe() {
	total := c.stats.TotalHits + c.stats.TotalMisses
	if total > 0 {
		c.stats.HitRatio = float64(c.stats.TotalHits) / float64(total)
	}
}

func (c *MultiLevelCache) promoteToHigherLevels(key string, value interface{}, toLevel int) {
	for i := 0; i <= toLevel; i++ {
		if i < len(c.levels) && c.levels[i].Enabled {
			c.levels[i].Cache.Put(key, value, 0)
		}
	}
}

func (c *MultiLevelCache) hybridPut(key string, value interface{}, ttl time.Duration) {
	if len(c.levels) > 0 && c.levels[0].Enabled {
		c.levels[0].Cache.Put(key, value, ttl)
	}

	if c.shouldPromoteToL2(value) && len(c.levels) > 1 && c.levels[1].Enabled {
		c.levels[1].Cache.Put(key, value, ttl)
	}
}

func (c *MultiLevelCache) shouldPromoteToL2(value interface{}) bool {
	if b, ok := value.([]byte); ok {
		return len(b) > 1024
	}
	return false
}

func (c *MultiLevelCache) updateEfficiencyMetrics() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	switch {
	case c.stats.HitRatio > 0.8:
		c.stats.Efficiency = 1.0
	case c.stats.HitRatio > 0.6:
		c.stats.Efficiency = 0.8
	case c.stats.HitRatio > 0.4:
		c.stats.Efficiency = 0.6
	default:
		c.stats.Efficiency = 0.4
	}
}

// CacheOptimizer interface for caches that support optimization
type CacheOptimizer interface {
	Optimize()
}

// EnableLevel enables a specific cache level
func (c *MultiLevelCache) EnableLevel(levelName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.levels {
		if c.levels[i].Name == levelName {
			c.levels[i].Enabled = true
			return nil
		}
	}

	return fmt.Errorf("cache level %s not found", levelName)
}

// DisableLevel disables a specific cache level
func (c *MultiLevelCache) DisableLevel(levelName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.levels {
		if c.levels[i].Name == levelName {
			c.levels[i].Enabled = false
			return nil
		}
	}

	return fmt.Errorf("cache level %s not found", levelName)
}

// ClearLevel clears a specific cache level
func (c *MultiLevelCache) ClearLevel(levelName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, level := range c.levels {
		if level.Name == levelName && level.Enabled {
			if clearer, ok := level.Cache.(CacheClearer); ok {
				clearer.Clear()
				return nil
			}
			return fmt.Errorf("cache level %s does not support clearing", levelName)
		}
	}

	return fmt.Errorf("cache level %s not found or not enabled", levelName)
}

// CacheClearer interface for caches that support clearing
type CacheClearer interface {
	Clear()
}
