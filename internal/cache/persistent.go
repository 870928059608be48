package cache

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// PersistentCache implements a disk-based types.Cache with optional
// compression, letting the bitmap cache survive a process restart.
// Grounded on the teacher's byte-range persistent cache: same
// index/file/compression/checksum machinery, regeneralized from
// offset-keyed []byte ranges to single JSON-encoded values per key.
type PersistentCache struct {
	mu          sync.RWMutex
	directory   string
	maxSize     int64
	currentSize int64
	index       map[string]*persistentItem
	config      *PersistentCacheConfig
	stats       types.CacheStats
	stopCh      chan struct{}
	closed      bool
}

// PersistentCacheConfig represents persistent cache configuration
type PersistentCacheConfig struct {
	Directory       string        `yaml:"directory"`
	MaxSize         int64         `yaml:"max_size"`
	TTL             time.Duration `yaml:"ttl"`
	Compression     bool          `yaml:"compression"`
	IndexFile       string        `yaml:"index_file"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	SyncInterval    time.Duration `yaml:"sync_interval"`
}

// persistentItem represents an item in the persistent cache
type persistentItem struct {
	Key        string        `json:"key"`
	FilePath   string        `json:"file_path"`
	Size       int64         `json:"size"`
	Timestamp  time.Time     `json:"timestamp"`
	AccessTime time.Time     `json:"access_time"`
	TTL        time.Duration `json:"ttl"`
	Compressed bool          `json:"compressed"`
	Checksum   string        `json:"checksum"`
}

// NewPersistentCache creates a new persistent cache
func NewPersistentCache(config *PersistentCacheConfig) (*PersistentCache, error) {
	if config == nil {
		config = &PersistentCacheConfig{
			Directory:       "/tmp/nexuskernel-cache",
			MaxSize:         1 * 1024 * 1024 * 1024, // 1GB
			TTL:             1 * time.Hour,
			Compression:     true,
			IndexFile:       "cache-index.json",
			CleanupInterval: 10 * time.Minute,
			SyncInterval:    time.Minute,
		}
	}

	if config.IndexFile == "" {
		config.IndexFile = "cache-index.json"
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = time.Minute
	}

	if err := os.MkdirAll(config.Directory, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	cache := &PersistentCache{
		directory: config.Directory,
		maxSize:   config.MaxSize,
		index:     make(map[string]*persistentItem),
		config:    config,
		stats: types.CacheStats{
			Capacity: config.MaxSize,
		},
		stopCh: make(chan struct{}),
		closed: false,
	}

	if err := cache.loadIndex(); err != nil {
		return nil, fmt.Errorf("failed to load cache index: %w", err)
	}

	go cache.cleanupExpired()
	go cache.syncIndex()

	return cache, nil
}

// Get retrieves a value from the persistent cache.
func (c *PersistentCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	item, exists := c.index[key]
	c.mu.RUnlock()

	if !exists {
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}

	if c.isExpired(item) {
		c.Delete(key)
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}

	raw, err := c.readFromFile(item)
	if err != nil {
		c.mu.Lock()
		delete(c.index, key)
		c.currentSize -= item.Size
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}

	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false
	}

	c.mu.Lock()
	item.AccessTime = time.Now()
	c.stats.Hits++
	c.updateHitRate()
	c.mu.Unlock()

	return value, true
}

// Put stores value under key, persisting it to disk.
func (c *PersistentCache) Put(key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existingItem, exists := c.index[key]; exists {
		_ = os.Remove(existingItem.FilePath)
		c.currentSize -= existingItem.Size
	}

	item := &persistentItem{
		Key:        key,
		Timestamp:  time.Now(),
		AccessTime: time.Now(),
		TTL:        ttl,
		Compressed: c.config.Compression,
		Checksum:   c.calculateChecksum(data),
	}
	item.FilePath = c.generateFilePath(key)

	actualSize, err := c.writeToFile(item, data)
	if err != nil {
		return
	}
	item.Size = actualSize

	c.index[key] = item
	c.currentSize += actualSize

	c.evictIfNeeded()
}

// Delete removes key (and any key sharing it as a prefix) from the cache.
func (c *PersistentCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var itemsToDelete []*persistentItem
	for cacheKey, item := range c.index {
		if c.keyMatches(cacheKey, key) {
			itemsToDelete = append(itemsToDelete, item)
		}
	}

	for _, item := range itemsToDelete {
		_ = os.Remove(item.FilePath)
		delete(c.index, item.Key)
		c.currentSize -= item.Size
		c.stats.Evictions++
	}
}

// Evict evicts items to free up space
func (c *PersistentCache) Evict(targetSize int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	freedSize := int64(0)

	type itemWithTime struct {
		item       *persistentItem
		accessTime time.Time
	}

	items := make([]itemWithTime, 0, len(c.index))
	for _, item := range c.index {
		items = append(items, itemWithTime{item: item, accessTime: item.AccessTime})
	}

	for i := 0; i < len(items)-1; i++ {
		for j := i + 1; j < len(items); j++ {
			if items[i].accessTime.After(items[j].accessTime) {
				items[i], items[j] = items[j], items[i]
			}
		}
	}

	for _, iwt := range items {
		if freedSize >= targetSize {
			break
		}

		item := iwt.item
		_ = os.Remove(item.FilePath)
		delete(c.index, item.Key)
		freedSize += item.Size
		c.currentSize -= item.Size
		c.stats.Evictions++
	}

	return freedSize >= targetSize
}

// Size returns the current cache size
func (c *PersistentCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentSize
}

// Stats returns cache statistics
func (c *PersistentCache) Stats() types.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Size = c.currentSize
	if c.maxSize > 0 {
		stats.Utilization = float64(c.currentSize) / float64(c.maxSize)
	}
	return stats
}

// Clear clears all cached data
func (c *PersistentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range c.index {
		_ = os.Remove(item.FilePath)
	}

	c.stats.Evictions += uint64(len(c.index))
	c.index = make(map[string]*persistentItem)
	c.currentSize = 0
}

// Close stops background goroutines and syncs the index
func (c *PersistentCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.stopCh)

	return c.saveIndex()
}

// Optimize removes expired items and forces an index sync.
func (c *PersistentCache) Optimize() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiredKeys []string
	for key, item := range c.index {
		if c.isExpired(item) {
			expiredKeys = append(expiredKeys, key)
		}
	}

	for _, key := range expiredKeys {
		item := c.index[key]
		_ = os.Remove(item.FilePath)
		delete(c.index, key)
		c.currentSize -= item.Size
	}

	_ = c.saveIndex()
}

// Helper methods

func (c *PersistentCache) keyMatches(cacheKey, key string) bool {
	return len(cacheKey) >= len(key) && cacheKey[:len(key)] == key
}

func (c *PersistentCache) isExpired(item *persistentItem) bool {
	ttl := item.TTL
	if ttl == 0 {
		ttl = c.config.TTL
	}
	if ttl == 0 {
		return false
	}
	return time.Since(item.Timestamp) > ttl
}

func (c *PersistentCache) generateFilePath(key string) string {
	hash := sha256.Sum256([]byte(key))
	filename := fmt.Sprintf("%x", hash[:8])
	return filepath.Join(c.directory, filename+".cache")
}

func (c *PersistentCache) calculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

func (c *PersistentCache) writeToFile(item *persistentItem, data []byte) (int64, error) {
	file, err := os.Create(item.FilePath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()

	var writer io.Writer = file

	if item.Compressed {
		gzipWriter := gzip.NewWriter(file)
		defer func() { _ = gzipWriter.Close() }()
		writer = gzipWriter
	}

	if _, err := writer.Write(data); err != nil {
		_ = os.Remove(item.FilePath)
		return 0, err
	}

	if stat, err := file.Stat(); err == nil {
		return stat.Size(), nil
	}
	return int64(len(data)), nil
}

func (c *PersistentCache) readFromFile(item *persistentItem) ([]byte, error) {
	file, err := os.Open(item.FilePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var reader io.Reader = file

	if item.Compressed {
		gzipReader, err := gzip.NewReader(file)
		if err != nil {
			return nil, err
		}
		defer func() { _ = gzipReader.Close() }()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if c.calculateChecksum(data) != item.Checksum {
		return nil, fmt.Errorf("checksum mismatch for cached file")
	}

	return data, nil
}

func (c *PersistentCache) loadIndex() error {
	indexPath := filepath.Join(c.directory, c.config.IndexFile)

	if !strings.HasPrefix(filepath.Clean(indexPath), filepath.Clean(c.directory)) {
		return fmt.Errorf("invalid index file path: %s", indexPath)
	}

	file, err := os.Open(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = file.Close() }()

	var items map[string]*persistentItem
	if err := json.NewDecoder(file).Decode(&items); err != nil {
		return err
	}

	c.currentSize = 0
	for key, item := range items {
		if _, err := os.Stat(item.FilePath); os.IsNotExist(err) {
			continue
		}
		c.index[key] = item
		c.currentSize += item.Size
	}

	return nil
}

func (c *PersistentCache) saveIndex() error {
	indexPath := filepath.Join(c.directory, c.config.IndexFile)

	if !strings.HasPrefix(filepath.Clean(indexPath), filepath.Clean(c.directory)) {
		return fmt.Errorf("invalid index file path: %s", indexPath)
	}

	tmpPath := indexPath + ".tmp"
	if !strings.HasPrefix(filepath.Clean(tmpPath), filepath.Clean(c.directory)) {
		return fmt.Errorf("invalid tmp index file path: %s", tmpPath)
	}
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if err := json.NewEncoder(file).Encode(c.index); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, indexPath)
}

func (c *PersistentCache) evictIfNeeded() {
	for c.currentSize > c.maxSize {
		if !c.evictOldest() {
			break
		}
	}
}

func (c *PersistentCache) evictOldest() bool {
	if len(c.index) == 0 {
		return false
	}

	var oldestKey string
	var oldestTime time.Time

	first := true
	for key, item := range c.index {
		if first || item.AccessTime.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.AccessTime
			first = false
		}
	}

	if oldestKey != "" {
		item := c.index[oldestKey]
		_ = os.Remove(item.FilePath)
		delete(c.index, oldestKey)
		c.currentSize -= item.Size
		c.stats.Evictions++
		return true
	}

	return false
}

func (c *PersistentCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}

func (c *PersistentCache) cleanupExpired() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			var expiredKeys []string

			for key, item := range c.index {
				if c.isExpired(item) {
					expiredKeys = append(expiredKeys, key)
				}
			}

			for _, key := range expiredKeys {
				item := c.index[key]
				_ = os.Remove(item.FilePath)
				delete(c.index, key)
				c.currentSize -= item.Size
			}
			c.mu.Unlock()
		}
	}
}

func (c *PersistentCache) syncIndex() {
	ticker := time.NewTicker(c.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.RLock()
			_ = c.saveIndex()
			c.mu.RUnlock()
		}
	}
}
