package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/marmos91/dittobtt/internal/logger"
)

// S3Config configures NewS3Client.
type S3Config struct {
	Bucket string

	// Region defaults to us-east-1.
	Region string

	// Endpoint overrides the service endpoint (MinIO, localstack, ...).
	Endpoint string

	// ForcePathStyle addresses buckets as endpoint/bucket/key.
	ForcePathStyle bool

	// AccessKeyID and SecretAccessKey, when both set, replace the default
	// credential chain.
	AccessKeyID     string
	SecretAccessKey string

	// MaxRetries bounds retries of transient failures. Default: 3.
	MaxRetries int
}

// S3Client is an ObjectClient backed by a single bucket.
type S3Client struct {
	client *s3.Client
	bucket string

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewS3Client builds an S3 client from cfg and the default AWS
// configuration chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return NewS3ClientFromClient(client, cfg.Bucket, cfg.MaxRetries), nil
}

// NewS3ClientFromClient wraps an existing SDK client.
func NewS3ClientFromClient(client *s3.Client, bucket string, maxRetries int) *S3Client {
	return &S3Client{
		client:         client,
		bucket:         bucket,
		maxRetries:     maxRetries,
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     2 * time.Second,
	}
}

// Put uploads body to key.
func (c *S3Client) Put(ctx context.Context, key string, body []byte) error {
	return c.retry(ctx, "PutObject", key, func() error {
		_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(c.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(body),
			ContentLength: aws.Int64(int64(len(body))),
		})
		return err
	})
}

// Get downloads key. A missing key returns ErrObjectNotFound.
func (c *S3Client) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := c.retry(ctx, "GetObject", key, func() error {
		out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer func() { _ = out.Body.Close() }()

		body, err = io.ReadAll(out.Body)
		return err
	})
	if isNotFoundError(err) {
		return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return body, err
}

// Delete removes key.
func (c *S3Client) Delete(ctx context.Context, key string) error {
	err := c.retry(ctx, "DeleteObject", key, func() error {
		_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if isNotFoundError(err) {
		return nil
	}
	return err
}

// retry runs fn until it succeeds, fails permanently, or the retry budget
// is spent, backing off exponentially between attempts.
func (c *S3Client) retry(ctx context.Context, op, key string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt - 1)
			logger.Debug("s3: retrying", logger.KeyOperation, op, logger.KeyKey, key, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil || !isRetryableError(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%s %s failed after %d attempts: %w", op, key, c.maxRetries+1, lastErr)
}

func (c *S3Client) backoff(attempt int) time.Duration {
	d := c.initialBackoff << attempt
	if d <= 0 || d > c.maxBackoff {
		d = c.maxBackoff
	}
	return d
}

// isRetryableError returns true if the error is transient.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "RequestThrottled", "SlowDown",
			"InternalError", "ServiceUnavailable":
			return true
		default:
			return false
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "i/o timeout")
}

// isNotFoundError returns true if the error indicates the object doesn't exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}
