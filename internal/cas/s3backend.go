package cas

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	kernelerrors "github.com/nexi-lab/nexuskernel/pkg/errors"
	"github.com/nexi-lab/nexuskernel/pkg/types"
)

// S3Backend is the S3-backed content-addressed store: objects are keyed
// by their SHA-256 content hash (sharded two levels deep, same layout as
// Passthrough) rather than by virtual path, so two files with identical
// bytes share one S3 object.
//
// Grounded on internal/storage/s3/backend.go (teacher) near-verbatim in
// shape — connection pool, CargoShip-optimized upload path, metrics,
// error translation — regeneralized from arbitrary path keys to
// content-hash keys, which also means ListObjects/ListObjects-by-prefix
// has no CAS equivalent (content objects aren't enumerated by path; the
// metadata store answers "what exists at this path").
type S3Backend struct {
	client *s3.Client
	bucket string

	pool        *ConnectionPool
	config      *Config
	transporter *cargoships3.Transporter
	logger      *slog.Logger

	mu      sync.RWMutex
	metrics BackendMetrics
}

// BackendMetrics tracks S3 CAS backend performance.
type BackendMetrics struct {
	Requests        int64
	Errors          int64
	BytesUploaded   int64
	BytesDownloaded int64
	AverageLatency  time.Duration
	LastError       string
	LastErrorTime   time.Time
}

// NewS3Backend creates a content-addressed S3 backend.
func NewS3Backend(ctx context.Context, bucket string, cfg *Config) (*S3Backend, error) {
	if bucket == "" {
		return nil, kernelerrors.InvalidArgument("cas", "bucket name cannot be empty")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(cfg.MaxRetries),
	)
	if err != nil {
		return nil, kernelerrors.Backend("cas", bucket, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.UseAccelerate {
			o.UseAccelerate = true
		}
	})

	pool, err := NewConnectionPool(cfg.PoolSize, func() (*s3.Client, error) {
		return s3.NewFromConfig(awsCfg), nil
	})
	if err != nil {
		return nil, kernelerrors.Backend("cas", bucket, err)
	}

	logger := slog.Default().With("component", "cas-s3", "bucket", bucket)

	var transporter *cargoships3.Transporter
	if cfg.EnableCargoShipOptimization {
		cargoCfg := awsconfig.S3Config{
			Bucket:             bucket,
			StorageClass:       awsconfig.StorageClassIntelligentTiering,
			MultipartThreshold: cfg.MultipartThreshold,
			MultipartChunkSize: cfg.MultipartChunkSize,
			Concurrency:        cfg.PoolSize,
		}
		transporter = cargoships3.NewTransporter(client, cargoCfg)
		logger.Info("cargoship optimization enabled", "target_throughput", cfg.TargetThroughput, "chunk_size", cfg.MultipartChunkSize)
	}

	backend := &S3Backend{
		client:      client,
		bucket:      bucket,
		pool:        pool,
		config:      cfg,
		transporter: transporter,
		logger:      logger,
	}

	if err := backend.HealthCheck(ctx); err != nil {
		return nil, err
	}
	return backend, nil
}

func objectKey(hash string) string {
	return fmt.Sprintf("%s/%s/%s", hash[:2], hash[2:4], hash)
}

// Put uploads data keyed by its content hash, using the CargoShip
// transporter when enabled and falling back to a direct PutObject call.
func (b *S3Backend) Put(ctx context.Context, data []byte) (string, error) {
	start := time.Now()
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	key := objectKey(hash)
	defer b.recordLatency(start)

	if exists, _ := b.Exists(ctx, hash); exists {
		return hash, nil
	}

	if b.transporter != nil {
		archive := cargoships3.Archive{
			Key:          key,
			Reader:       bytes.NewReader(data),
			Size:         int64(len(data)),
			StorageClass: awsconfig.StorageClassStandard,
			Metadata:     map[string]string{"content-hash": hash},
		}
		if result, err := b.transporter.Upload(ctx, archive); err == nil {
			b.logger.Debug("cargoship upload complete", "hash", hash, "size", len(data), "throughput", result.Throughput)
			b.mu.Lock()
			b.metrics.BytesUploaded += int64(len(data))
			b.mu.Unlock()
			return hash, nil
		} else {
			b.logger.Warn("cargoship upload failed, falling back to standard put", "hash", hash, "error", err)
		}
	}

	client := b.pool.Get()
	defer b.pool.Put(client)

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      map[string]string{"content-hash": hash},
	})
	if err != nil {
		b.recordError(err)
		return "", b.translateError(err, "Put", hash)
	}

	b.mu.Lock()
	b.metrics.BytesUploaded += int64(len(data))
	b.mu.Unlock()
	return hash, nil
}

// Get retrieves the blob for hash.
func (b *S3Backend) Get(ctx context.Context, hash string) ([]byte, error) {
	start := time.Now()
	defer b.recordLatency(start)

	client := b.pool.Get()
	defer b.pool.Put(client)

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(hash)),
	})
	if err != nil {
		b.recordError(err)
		return nil, b.translateError(err, "Get", hash)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, kernelerrors.Backend("cas", hash, err)
	}
	b.mu.Lock()
	b.metrics.BytesDownloaded += int64(len(data))
	b.mu.Unlock()
	return data, nil
}

// Head returns metadata about hash without downloading its bytes.
func (b *S3Backend) Head(ctx context.Context, hash string) (*types.ContentObject, error) {
	client := b.pool.Get()
	defer b.pool.Put(client)

	result, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(hash)),
	})
	if err != nil {
		b.recordError(err)
		return nil, b.translateError(err, "Head", hash)
	}
	return &types.ContentObject{
		Hash:     hash,
		Size:     aws.ToInt64(result.ContentLength),
		StoredAt: aws.ToTime(result.LastModified),
	}, nil
}

// Delete removes the S3 object backing hash.
func (b *S3Backend) Delete(ctx context.Context, hash string) error {
	client := b.pool.Get()
	defer b.pool.Put(client)

	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(objectKey(hash)),
	})
	if err != nil {
		b.recordError(err)
		return b.translateError(err, "Delete", hash)
	}
	return nil
}

// Exists reports whether hash has a backing S3 object.
func (b *S3Backend) Exists(ctx context.Context, hash string) (bool, error) {
	_, err := b.Head(ctx, hash)
	if err == nil {
		return true, nil
	}
	var kerr *kernelerrors.KernelError
	if errors.As(err, &kerr) && kerr.Kind == kernelerrors.KindNotFound {
		return false, nil
	}
	return false, err
}

// HealthCheck verifies bucket connectivity.
func (b *S3Backend) HealthCheck(ctx context.Context) error {
	client := b.pool.Get()
	defer b.pool.Put(client)

	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err != nil {
		return kernelerrors.Backend("cas", b.bucket, err)
	}
	return nil
}

// GetMetrics returns a snapshot of backend traffic metrics.
func (b *S3Backend) GetMetrics() BackendMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

// Close releases pooled connections.
func (b *S3Backend) Close() error {
	return b.pool.Close()
}

func (b *S3Backend) recordLatency(start time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := time.Since(start)
	b.metrics.Requests++
	if b.metrics.Requests == 1 {
		b.metrics.AverageLatency = d
	} else {
		b.metrics.AverageLatency = time.Duration((int64(b.metrics.AverageLatency)*9 + int64(d)) / 10)
	}
}

func (b *S3Backend) recordError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.Errors++
	b.metrics.LastError = err.Error()
	b.metrics.LastErrorTime = time.Now()
}

func (b *S3Backend) translateError(err error, operation, hash string) error {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return kernelerrors.NotFound("cas", "content object not found").WithContext("hash", hash)
	}
	var nsb *s3types.NoSuchBucket
	if errors.As(err, &nsb) {
		return kernelerrors.Backend("cas", b.bucket, err).WithDetail("message", "bucket not found")
	}
	return kernelerrors.Backend("cas", hash, err).WithOperation(operation)
}
