package source

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/time/rate"

	s3config "github.com/aws/aws-sdk-go-v2/config"

	"github.com/olegkotsar/ftpreconcile/config"
	"github.com/olegkotsar/ftpreconcile/logger"
	"github.com/olegkotsar/ftpreconcile/model"
)

var _ SourceProvider = (*S3Source)(nil)

// S3API is the part of the S3 client the source uses, so tests can provide
// their own implementation.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source publishes the objects of a bucket, optionally limited to a
// prefix. Objects are downloaded to a temporary file before upload.
type S3Source struct {
	client           S3API
	config           *config.S3Config
	common           *config.CommonSourceConfig
	limiter          *rate.Limiter
	log              logger.Logger
	requestCount     int64      // Total requests made
	lastRequestCount int64      // Request count at last RPS calculation
	lastRPS          int64      // Last calculated RPS
	lastRPSTime      time.Time  // Time of last RPS calculation
	mu               sync.Mutex // Protects RPS calculation fields
}

func NewS3Source(cfg *config.S3Config, common *config.CommonSourceConfig, log logger.Logger) (*S3Source, error) {
	ctx := context.TODO()

	common.ApplyDefaults()

	// For S3-compatible storage, region is often just a placeholder
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	s3cfg, err := s3config.LoadDefaultConfig(
		ctx,
		s3config.WithRegion(region),
		s3config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		// Suppress AWS SDK logging warnings about missing checksums
		s3config.WithClientLogMode(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	client := s3.NewFromConfig(s3cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		// Use path-style addressing for S3-compatible storage
		o.UsePathStyle = true
	})

	return newS3Source(client, cfg, common, log), nil
}

func newS3Source(client S3API, cfg *config.S3Config, common *config.CommonSourceConfig, log logger.Logger) *S3Source {
	// default 0, no limit
	var limiter *rate.Limiter
	if common.MaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(common.MaxRPS), common.MaxRPS) // burst = MaxRPS
	}
	return &S3Source{
		client:      client,
		config:      cfg,
		common:      common,
		limiter:     limiter,
		log:         logger.OrNoOp(log).WithFields(map[string]interface{}{"source": "s3", "bucket": cfg.Bucket}),
		lastRPSTime: time.Now(),
	}
}

// List pages through every object under the configured prefix. Keys are
// returned relative to the prefix; "directory" placeholder objects are
// skipped.
func (c *S3Source) List(ctx context.Context) ([]model.SourceFile, error) {
	var (
		objects           []model.SourceFile
		continuationToken *string
		pages             int
	)

	prefix := c.keyPrefix()
	for {
		resp, err := callWithRetry(ctx, c, func(ctx context.Context) (*s3.ListObjectsV2Output, error) {
			return c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(c.config.Bucket),
				Prefix:            aws.String(prefix),
				ContinuationToken: continuationToken,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in %s: %w", prefix, err)
		}
		pages++

		for _, v := range resp.Contents {
			key := strings.TrimPrefix(aws.ToString(v.Key), prefix)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			var mtime int64
			if v.LastModified != nil {
				mtime = v.LastModified.Unix()
			}
			objects = append(objects, model.SourceFile{
				Key:     key,
				Hash:    strings.Trim(aws.ToString(v.ETag), `"`),
				Size:    aws.ToInt64(v.Size),
				ModTime: mtime,
			})
		}

		if aws.ToBool(resp.IsTruncated) && resp.NextContinuationToken != nil {
			continuationToken = resp.NextContinuationToken
		} else {
			break
		}
	}

	c.log.Debug("listed %d objects in %d pages", len(objects), pages)
	return objects, nil
}

// keyPrefix is the configured prefix as a "directory", so "photos" does not
// also match "photos-old/".
func (c *S3Source) keyPrefix() string {
	p := strings.Trim(c.config.Prefix, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// Open downloads key into a temporary file.
func (c *S3Source) Open(ctx context.Context, key string) (string, func(), error) {
	reader, err := c.GetObject(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer reader.Close()

	pattern := "ftpreconcile-*"
	if i := strings.LastIndex(key, "."); i > strings.LastIndex(key, "/") {
		// Keep the extension, the date layout looks at it
		pattern += key[i:]
	}
	tmp, err := os.CreateTemp(c.common.TempDir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	cleanup := func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			c.log.Warn("failed to remove temp file %s: %v", tmp.Name(), err)
		}
	}

	_, err = io.Copy(tmp, reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to download %s: %w", key, err)
	}

	// Freshness checks compare against the object's time, not the download's
	if r, ok := reader.(*contextAwareReader); ok && !r.modTime.IsZero() {
		if err := os.Chtimes(tmp.Name(), r.modTime, r.modTime); err != nil {
			c.log.Debug("failed to set mtime of %s: %v", tmp.Name(), err)
		}
	}

	return tmp.Name(), cleanup, nil
}

// callWithRetry executes fn with retry logic, timeout, and RPS limiting.
func callWithRetry[T any](ctx context.Context, c *S3Source, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	retries := c.common.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		// Rate limiting: wait for token before each attempt
		if err := c.wait(ctx); err != nil {
			return zero, err
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.timeout())
		resp, err := fn(reqCtx)
		cancel()
		if err == nil {
			return resp, nil
		}

		lastErr = err
		c.log.Debug("attempt %d/%d failed: %v", i+1, retries, err)
		if i == retries-1 {
			break
		}

		// Exponential backoff before next retry
		backoff := time.Duration(math.Pow(2, float64(i))) * 200 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("all retries failed: %w", lastErr)
}

func (c *S3Source) wait(ctx context.Context) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}
	}
	atomic.AddInt64(&c.requestCount, 1)
	return nil
}

func (c *S3Source) timeout() time.Duration {
	if c.common.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.common.TimeoutSeconds) * time.Second
}

// GetObject downloads a file from S3 and returns a reader
func (c *S3Source) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	// The caller closes the reader, which releases the context
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout())

	result, err := c.client.GetObject(reqCtx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(c.keyPrefix() + key),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}

	return &contextAwareReader{
		ReadCloser: result.Body,
		cancel:     cancel,
		modTime:    aws.ToTime(result.LastModified),
	}, nil
}

// contextAwareReader wraps an io.ReadCloser and cancels context on close
type contextAwareReader struct {
	io.ReadCloser
	cancel  context.CancelFunc
	modTime time.Time
}

func (r *contextAwareReader) Close() error {
	defer r.cancel()
	return r.ReadCloser.Close()
}

// GetCurrentRPS calculates and returns the current requests per second rate.
// It is safe to call periodically for monitoring.
func (c *S3Source) GetCurrentRPS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(c.lastRPSTime).Seconds()

	// Only recalculate if at least 1 second has passed
	if elapsed >= 1.0 {
		currentCount := atomic.LoadInt64(&c.requestCount)
		requestsDelta := currentCount - c.lastRequestCount

		c.lastRPS = int64(float64(requestsDelta) / elapsed)
		c.lastRequestCount = currentCount
		c.lastRPSTime = now
	}

	return c.lastRPS
}
