package cache

import (
	"math"
	"sync"
	"time"

	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// PredictiveCache wraps a base types.Cache and watches access frequency
// per key, firing an OnHighTraffic callback when a key's recent check
// traffic crosses a confidence threshold. The ReBAC engine's directory
// grant walker uses this to pre-walk a subtree ahead of its normal async
// expansion queue when a path is being checked unusually often — a pure
// accelerator, never a correctness dependency: Check still falls back to
// the tuple graph walk if no grant has materialized yet.
//
// Grounded on the teacher's ML-driven predictive cache: kept the
// AccessPredictor/AccessPattern frequency-and-recency scoring idiom,
// dropped the sequential-offset scoring, gradient-descent model, and
// bandwidth-limited block prefetcher — those exist to predict which
// *byte range* of a *file* gets read next, which has no counterpart for
// a boolean permission check keyed by (subject, relation, resource).
type PredictiveCache struct {
	baseCache     types.Cache
	predictor     *AccessPredictor
	config        *PredictiveCacheConfig
	onHighTraffic func(key string)
}

// PredictiveCacheConfig configures predictive pre-expansion triggering.
type PredictiveCacheConfig struct {
	PredictionWindow    int           `yaml:"prediction_window"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	FrequencyWindow     time.Duration `yaml:"frequency_window"`
	RetriggerCooldown   time.Duration `yaml:"retrigger_cooldown"`
}

// AccessPredictor tracks recent access frequency/recency per key.
type AccessPredictor struct {
	mu         sync.Mutex
	patterns   map[string]*AccessPattern
	windowSize int
	window     time.Duration
}

// AccessPattern is the learned frequency/recency profile for one key.
type AccessPattern struct {
	Key             string
	AccessHistory   []time.Time
	FrequencyScore  float64
	RecencyScore    float64
	LastAccess      time.Time
	LastTriggeredAt time.Time
}

// NewPredictiveCache creates a predictive wrapper around base. onHighTraffic
// may be nil, in which case the predictor still scores patterns but never
// triggers anything.
func NewPredictiveCache(base types.Cache, config *PredictiveCacheConfig, onHighTraffic func(key string)) *PredictiveCache {
	if config == nil {
		config = &PredictiveCacheConfig{
			PredictionWindow:    20,
			ConfidenceThreshold: 0.7,
			FrequencyWindow:     time.Hour,
			RetriggerCooldown:   5 * time.Minute,
		}
	}
	if config.PredictionWindow <= 0 {
		config.PredictionWindow = 20
	}
	if config.FrequencyWindow <= 0 {
		config.FrequencyWindow = time.Hour
	}
	if config.RetriggerCooldown <= 0 {
		config.RetriggerCooldown = 5 * time.Minute
	}

	return &PredictiveCache{
		baseCache: base,
		predictor: &AccessPredictor{
			patterns:   make(map[string]*AccessPattern),
			windowSize: config.PredictionWindow,
			window:     config.FrequencyWindow,
		},
		config:        config,
		onHighTraffic: onHighTraffic,
	}
}

// Get retrieves a value, recording the access for frequency scoring.
func (pc *PredictiveCache) Get(key string) (interface{}, bool) {
	value, ok := pc.baseCache.Get(key)
	pc.record(key)
	return value, ok
}

// Put stores a value, recording the access for frequency scoring.
func (pc *PredictiveCache) Put(key string, value interface{}, ttl time.Duration) {
	pc.baseCache.Put(key, value, ttl)
	pc.record(key)
}

// Delete removes key and its learned access pattern.
func (pc *PredictiveCache) Delete(key string) {
	pc.baseCache.Delete(key)
	pc.predictor.mu.Lock()
	delete(pc.predictor.patterns, key)
	pc.predictor.mu.Unlock()
}

// Evict delegates to the base cache.
func (pc *PredictiveCache) Evict(size int64) bool { return pc.baseCache.Evict(size) }

// Size delegates to the base cache.
func (pc *PredictiveCache) Size() int64 { return pc.baseCache.Size() }

// Stats delegates to the base cache.
func (pc *PredictiveCache) Stats() types.CacheStats { return pc.baseCache.Stats() }

// Optimize satisfies CacheOptimizer, forwarding to the base cache if it
// supports optimization.
func (pc *PredictiveCache) Optimize() {
	if optimizer, ok := pc.baseCache.(CacheOptimizer); ok {
		optimizer.Optimize()
	}
}

func (pc *PredictiveCache) record(key string) {
	pattern := pc.predictor.recordAccess(key)
	if pattern == nil || pc.onHighTraffic == nil {
		return
	}
	if pattern.FrequencyScore < pc.config.ConfidenceThreshold {
		return
	}
	if time.Since(pattern.LastTriggeredAt) < pc.config.RetriggerCooldown {
		return
	}
	pc.predictor.mu.Lock()
	pattern.LastTriggeredAt = time.Now()
	pc.predictor.mu.Unlock()

	go pc.onHighTraffic(key)
}

// recordAccess appends an access event and recomputes the pattern's
// frequency/recency scores, returning the updated pattern.
func (ap *AccessPredictor) recordAccess(key string) *AccessPattern {
	ap.mu.Lock()
	defer ap.mu.Unlock()

	pattern, exists := ap.patterns[key]
	if !exists {
		pattern = &AccessPattern{Key: key, AccessHistory: make([]time.Time, 0, ap.windowSize)}
		ap.patterns[key] = pattern
	}

	now := time.Now()
	pattern.AccessHistory = append(pattern.AccessHistory, now)
	if len(pattern.AccessHistory) > ap.windowSize {
		pattern.AccessHistory = pattern.AccessHistory[1:]
	}
	pattern.LastAccess = now

	recent := 0
	for _, t := range pattern.AccessHistory {
		if now.Sub(t) < ap.window {
			recent++
		}
	}
	pattern.FrequencyScore = float64(recent) / float64(ap.windowSize)
	pattern.RecencyScore = math.Exp(-now.Sub(pattern.LastAccess).Hours() / 24)

	return pattern
}
