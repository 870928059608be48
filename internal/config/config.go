package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete kernel configuration.
type Configuration struct {
	Global         GlobalConfig         `yaml:"global"`
	Mounts         []MountConfig        `yaml:"mounts"`
	CAS            CASConfig            `yaml:"cas"`
	MetadataStore  MetadataStoreConfig  `yaml:"metadata_store"`
	Cluster        ClusterConfig        `yaml:"cluster"`
	ReBAC          ReBACConfig          `yaml:"rebac"`
	Events         EventsConfig         `yaml:"events"`
	ReadSet        ReadSetConfig        `yaml:"read_set"`
	Cache          CacheConfig          `yaml:"cache"`
	Network        NetworkConfig        `yaml:"network"`
	Security       SecurityConfig       `yaml:"security"`
	Monitoring     MonitoringConfig     `yaml:"monitoring"`
	Features       FeatureConfig        `yaml:"features"`
}

// GlobalConfig represents global application settings.
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsPort int    `yaml:"metrics_port"`
	HealthPort  int    `yaml:"health_port"`
	ProfilePort int    `yaml:"profile_port"`
}

// MountConfig binds a virtual path prefix to a backend and a priority used
// to break ties when two mounts could both serve a path.
type MountConfig struct {
	Prefix   string `yaml:"prefix"`
	Backend  string `yaml:"backend"` // "passthrough" | "s3"
	Zone     string `yaml:"zone"`
	Priority int    `yaml:"priority"`
	ReadOnly bool   `yaml:"read_only"`
}

// CASConfig configures the content-addressed storage layer.
type CASConfig struct {
	Backend           string        `yaml:"backend"` // "passthrough" | "s3"
	PassthroughRoot   string        `yaml:"passthrough_root"`
	S3                S3Config      `yaml:"s3"`
	MultipartThreshold string       `yaml:"multipart_threshold"`
	VersionGC         VersionGCConfig `yaml:"version_gc"`
}

// S3Config configures the S3-backed CAS backend.
type S3Config struct {
	Bucket           string `yaml:"bucket"`
	Region           string `yaml:"region"`
	Prefix           string `yaml:"prefix"`
	Endpoint         string `yaml:"endpoint"`
	CargoShipEnabled bool   `yaml:"cargoship_enabled"`
}

// VersionGCConfig configures the version-history garbage collector sweep.
type VersionGCConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RetainVersions int          `yaml:"retain_versions"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

// MetadataStoreConfig configures the replicated metadata store.
type MetadataStoreConfig struct {
	Backend          string        `yaml:"backend"` // "memory" | "postgres"
	PostgresDSN      string        `yaml:"postgres_dsn"`
	WriteBuffer      WriteBufferConfig `yaml:"write_buffer"`
	ProposeTimeout   time.Duration `yaml:"propose_timeout"`
	ListPageSize     int           `yaml:"list_page_size"`
}

// WriteBufferConfig configures the backpressured async write queue sitting
// in front of the metadata store's durable backend.
type WriteBufferConfig struct {
	MaxPending    int           `yaml:"max_pending"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	FlushBatch    int           `yaml:"flush_batch"`
}

// ClusterConfig configures the replicated-log / gossip cluster topology.
type ClusterConfig struct {
	Enabled      bool          `yaml:"enabled"`
	NodeID       string        `yaml:"node_id"`
	BindAddress  string        `yaml:"bind_address"`
	Peers        []string      `yaml:"peers"`
	Zone         string        `yaml:"zone"`
	ElectionTimeout  time.Duration `yaml:"election_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// ReBACConfig configures the relationship-based access control engine.
type ReBACConfig struct {
	SchemaPath         string        `yaml:"schema_path"`
	CheckCacheTTL      time.Duration `yaml:"check_cache_ttl"`
	CheckCacheSize     int           `yaml:"check_cache_size"`
	MaxCheckDepth      int           `yaml:"max_check_depth"`
	GrantWalkerBatch   int           `yaml:"grant_walker_batch"`
	OpenAccessFallback bool          `yaml:"open_access_fallback"`
}

// EventsConfig selects and configures the events/locks track.
type EventsConfig struct {
	Topology       string        `yaml:"topology"` // "distributed" | "same_box"
	WatchRoot      string        `yaml:"watch_root"`
	LockLeaseTTL   time.Duration `yaml:"lock_lease_ttl"`
	GossipFanout   int           `yaml:"gossip_fanout"`
}

// ReadSetConfig configures the read-set registry's idle-time sweep.
type ReadSetConfig struct {
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// CacheConfig represents cache configuration for the ReBAC check/bitmap
// caches and the FUSE byte-range cache carried over from the teacher.
type CacheConfig struct {
	TTL             time.Duration         `yaml:"ttl"`
	MaxEntries      int                   `yaml:"max_entries"`
	EvictionPolicy  string                `yaml:"eviction_policy"`
	PersistentCache PersistentCacheConfig `yaml:"persistent_cache"`
}

// PersistentCacheConfig represents persistent cache settings.
type PersistentCacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
	MaxSize   string `yaml:"max_size"`
}

// NetworkConfig represents network configuration.
type NetworkConfig struct {
	Timeouts       TimeoutConfig        `yaml:"timeouts"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

// RateLimitConfig bounds requests per subject per zone.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	Burst             int  `yaml:"burst"`
}

// TimeoutConfig represents timeout settings.
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect"`
	Read    time.Duration `yaml:"read"`
	Write   time.Duration `yaml:"write"`
}

// RetryConfig represents retry settings.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// CircuitBreakerConfig represents circuit breaker settings.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// SecurityConfig represents security settings.
type SecurityConfig struct {
	TLS              TLSConfig `yaml:"tls"`
	AllowOpenAccess  bool      `yaml:"allow_open_access"`
	TokenHeaderStyle string    `yaml:"token_header_style"` // "bearer" | "structured"
}

// TLSConfig represents TLS settings.
type TLSConfig struct {
	VerifyCertificates bool   `yaml:"verify_certificates"`
	MinVersion         string `yaml:"min_version"`
}

// MonitoringConfig represents monitoring settings.
type MonitoringConfig struct {
	Metrics      MetricsConfig      `yaml:"metrics"`
	HealthChecks HealthChecksConfig `yaml:"health_checks"`
	Logging      LoggingConfig      `yaml:"logging"`
	Sentry       SentryConfig       `yaml:"sentry"`
}

// MetricsConfig represents metrics settings.
type MetricsConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Prometheus   bool              `yaml:"prometheus"`
	CustomLabels map[string]string `yaml:"custom_labels"`
}

// HealthChecksConfig represents health check settings.
type HealthChecksConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Structured bool           `yaml:"structured"`
	Format     string         `yaml:"format"`
	Sampling   SamplingConfig `yaml:"sampling"`
}

// SamplingConfig represents log sampling settings.
type SamplingConfig struct {
	Enabled bool `yaml:"enabled"`
	Rate    int  `yaml:"rate"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled          bool    `yaml:"enabled"`
	DSN              string  `yaml:"dsn"`
	Environment      string  `yaml:"environment"`
	TracesSampleRate float64 `yaml:"traces_sample_rate"`
	SendPII          bool    `yaml:"send_pii"`
}

// FeatureConfig represents feature flags.
type FeatureConfig struct {
	DirectoryGrantPrematerialization bool `yaml:"directory_grant_prematerialization"`
	ReadSetInvalidation              bool `yaml:"read_set_invalidation"`
	WriteBatching                    bool `yaml:"write_batching"`
	VersionHistory                   bool `yaml:"version_history"`
	OfflineMode                      bool `yaml:"offline_mode"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFile:     "",
			MetricsPort: 8080,
			HealthPort:  8081,
			ProfilePort: 6060,
		},
		Mounts: []MountConfig{
			{Prefix: "/", Backend: "passthrough", Zone: "default", Priority: 0},
		},
		CAS: CASConfig{
			Backend:            "passthrough",
			PassthroughRoot:    "/var/lib/nexuskernel/cas",
			MultipartThreshold: "16MB",
			VersionGC: VersionGCConfig{
				Enabled:        true,
				RetainVersions: 20,
				SweepInterval:  time.Hour,
				BatchSize:      500,
			},
		},
		MetadataStore: MetadataStoreConfig{
			Backend: "memory",
			WriteBuffer: WriteBufferConfig{
				MaxPending:    10000,
				FlushInterval: 2 * time.Second,
				FlushBatch:    200,
			},
			ProposeTimeout: 5 * time.Second,
			ListPageSize:   1000,
		},
		Cluster: ClusterConfig{
			Enabled:           false,
			ElectionTimeout:   1500 * time.Millisecond,
			HeartbeatInterval: 150 * time.Millisecond,
		},
		ReBAC: ReBACConfig{
			CheckCacheTTL:      30 * time.Second,
			CheckCacheSize:     50000,
			MaxCheckDepth:      20,
			GrantWalkerBatch:   500,
			OpenAccessFallback: false,
		},
		Events: EventsConfig{
			Topology:     "same_box",
			LockLeaseTTL: 30 * time.Second,
			GossipFanout: 3,
		},
		ReadSet: ReadSetConfig{
			DefaultTTL:    5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Cache: CacheConfig{
			TTL:            5 * time.Minute,
			MaxEntries:     100000,
			EvictionPolicy: "weighted_lru",
			PersistentCache: PersistentCacheConfig{
				Enabled:   false,
				Directory: "/var/cache/nexuskernel",
				MaxSize:   "10GB",
			},
		},
		Network: NetworkConfig{
			Timeouts: TimeoutConfig{
				Connect: 10 * time.Second,
				Read:    30 * time.Second,
				Write:   300 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   1 * time.Second,
				MaxDelay:    30 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          60 * time.Second,
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 500,
				Burst:             1000,
			},
		},
		Security: SecurityConfig{
			TLS: TLSConfig{
				VerifyCertificates: true,
				MinVersion:         "1.2",
			},
			AllowOpenAccess:  false,
			TokenHeaderStyle: "bearer",
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:    true,
				Prometheus: true,
				CustomLabels: map[string]string{
					"service": "nexuskernel",
				},
			},
			HealthChecks: HealthChecksConfig{
				Enabled:  true,
				Interval: 30 * time.Second,
				Timeout:  5 * time.Second,
			},
			Logging: LoggingConfig{
				Structured: true,
				Format:     "json",
				Sampling: SamplingConfig{
					Enabled: true,
					Rate:    1000,
				},
			},
			Sentry: SentryConfig{
				Enabled:          false,
				Environment:      "development",
				TracesSampleRate: 0.1,
				SendPII:          false,
			},
		},
		Features: FeatureConfig{
			DirectoryGrantPrematerialization: true,
			ReadSetInvalidation:              true,
			WriteBatching:                    true,
			VersionHistory:                   true,
			OfflineMode:                      false,
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables, taking
// precedence over whatever LoadFromFile populated.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("NEXUSKERNEL_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("NEXUSKERNEL_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("NEXUSKERNEL_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.MetricsPort = port
		}
	}

	if val := os.Getenv("NEXUSKERNEL_CAS_BACKEND"); val != "" {
		c.CAS.Backend = val
	}
	if val := os.Getenv("NEXUSKERNEL_CAS_ROOT"); val != "" {
		c.CAS.PassthroughRoot = val
	}
	if val := os.Getenv("NEXUSKERNEL_S3_BUCKET"); val != "" {
		c.CAS.S3.Bucket = val
	}
	if val := os.Getenv("NEXUSKERNEL_S3_REGION"); val != "" {
		c.CAS.S3.Region = val
	}

	if val := os.Getenv("NEXUSKERNEL_CLUSTER_ENABLED"); val != "" {
		c.Cluster.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("NEXUSKERNEL_CLUSTER_NODE_ID"); val != "" {
		c.Cluster.NodeID = val
	}
	if val := os.Getenv("NEXUSKERNEL_CLUSTER_PEERS"); val != "" {
		c.Cluster.Peers = strings.Split(val, ",")
	}

	if val := os.Getenv("NEXUSKERNEL_REBAC_SCHEMA"); val != "" {
		c.ReBAC.SchemaPath = val
	}
	if val := os.Getenv("NEXUSKERNEL_REBAC_OPEN_ACCESS_FALLBACK"); val != "" {
		c.ReBAC.OpenAccessFallback = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("NEXUSKERNEL_EVENTS_TOPOLOGY"); val != "" {
		c.Events.Topology = val
	}

	if val := os.Getenv("NEXUSKERNEL_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Cache.TTL = duration
		}
	}

	if val := os.Getenv("NEXUSKERNEL_SENTRY_DSN"); val != "" {
		c.Monitoring.Sentry.DSN = val
		c.Monitoring.Sentry.Enabled = true
	}
	if val := os.Getenv("NEXUSKERNEL_SENTRY_ENVIRONMENT"); val != "" {
		c.Monitoring.Sentry.Environment = val
	}

	if val := os.Getenv("NEXUSKERNEL_RATE_LIMIT_ENABLED"); val != "" {
		c.Network.RateLimit.Enabled = strings.ToLower(val) == "true"
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Configuration) Validate() error {
	if len(c.Mounts) == 0 {
		return fmt.Errorf("at least one mount must be configured")
	}
	for _, m := range c.Mounts {
		if m.Prefix == "" || m.Prefix[0] != '/' {
			return fmt.Errorf("mount prefix %q must be absolute", m.Prefix)
		}
		if m.Backend != "passthrough" && m.Backend != "s3" {
			return fmt.Errorf("mount %q: unknown backend %q", m.Prefix, m.Backend)
		}
	}

	if c.CAS.Backend == "s3" && c.CAS.S3.Bucket == "" {
		return fmt.Errorf("cas.s3.bucket is required when cas.backend is s3")
	}

	if c.Cluster.Enabled && c.Cluster.NodeID == "" {
		return fmt.Errorf("cluster.node_id is required when cluster.enabled is true")
	}

	if c.Events.Topology != "distributed" && c.Events.Topology != "same_box" {
		return fmt.Errorf("invalid events.topology: %s (must be distributed or same_box)", c.Events.Topology)
	}
	if c.Events.Topology == "distributed" && !c.Cluster.Enabled {
		return fmt.Errorf("events.topology=distributed requires cluster.enabled=true")
	}

	if c.Global.MetricsPort == c.Global.HealthPort {
		return fmt.Errorf("metrics_port and health_port cannot be the same")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Monitoring.Sentry.Enabled && c.Monitoring.Sentry.DSN == "" {
		return fmt.Errorf("monitoring.sentry.dsn is required when sentry is enabled")
	}

	return nil
}
