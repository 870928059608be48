package cas

import "time"

// Config configures the S3 content-addressed backend. Grounded on
// internal/storage/s3/config.go (teacher), trimmed to the fields the CAS
// object model (content-hash keys, no byte-range access) actually needs.
type Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	UseAccelerate   bool   `yaml:"use_accelerate"`

	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PoolSize       int           `yaml:"pool_size"`

	MultipartThreshold int64 `yaml:"multipart_threshold"`
	MultipartChunkSize int64 `yaml:"multipart_chunk_size"`

	EnableCargoShipOptimization bool    `yaml:"enable_cargoship_optimization"`
	TargetThroughput            float64 `yaml:"target_throughput"`
}

// NewDefaultConfig returns sane defaults for the S3 CAS backend.
func NewDefaultConfig() *Config {
	return &Config{
		MaxRetries:                   3,
		RequestTimeout:               30 * time.Second,
		PoolSize:                     8,
		MultipartThreshold:           32 * 1024 * 1024,
		MultipartChunkSize:           16 * 1024 * 1024,
		EnableCargoShipOptimization:  true,
		TargetThroughput:             800.0,
	}
}
