package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Reainz/Snapflow-sub001/pkg/storage"
)

var s3Tracer = tracer

// s3API is the subset of *s3.Client used here
type s3API interface {
	s3.ListObjectsV2APIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Client counts raw uploads and signs asset URLs
type S3Client struct {
	client    s3API
	presigner *s3.PresignClient
	bucket    string
	maxScan   int64
	observer  OperationObserver
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, cfg storage.Config) (*S3Client, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Static credentials (MinIO or explicit keys); otherwise the default chain
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return newS3Client(client, s3.NewPresignClient(client), cfg), nil
}

func newS3Client(api s3API, presigner *s3.PresignClient, cfg storage.Config) *S3Client {
	return &S3Client{
		client:    api,
		presigner: presigner,
		bucket:    cfg.S3Bucket,
		maxScan:   cfg.S3MaxObjectScan,
		observer:  nopObserver{},
	}
}

// SetObserver records every S3 call on o
func (c *S3Client) SetObserver(o OperationObserver) {
	if o != nil {
		c.observer = o
	}
}

// CountObjects counts objects under prefix, page by page. The scan stops at
// the configured cap, so the result is a lower bound once the cap is hit.
func (c *S3Client) CountObjects(ctx context.Context, prefix string) (count int64, err error) {
	start := time.Now()
	ctx, span := s3Tracer.Start(ctx, "S3.CountObjects",
		trace.WithAttributes(
			attribute.String("s3.operation", "ListObjectsV2"),
			attribute.String("s3.bucket", c.bucket),
			attribute.String("s3.prefix", prefix),
		),
	)
	defer func() {
		c.observer.ObserveStorage("CountObjects", "s3", err, time.Since(start))
		span.End()
	}()

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})

	truncated := false
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to list objects")
			return 0, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		count += int64(len(page.Contents))
		if c.maxScan > 0 && count >= c.maxScan {
			count = c.maxScan
			truncated = true
			break
		}
	}

	span.SetAttributes(
		attribute.Int64("s3.object_count", count),
		attribute.Bool("s3.scan_truncated", truncated),
	)
	return count, nil
}

// PresignGet returns a time-limited GET URL for key
func (c *S3Client) PresignGet(ctx context.Context, key string, ttl time.Duration) (_ string, err error) {
	start := time.Now()
	ctx, span := s3Tracer.Start(ctx, "S3.PresignGet",
		trace.WithAttributes(
			attribute.String("s3.bucket", c.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer func() {
		c.observer.ObserveStorage("PresignGet", "s3", err, time.Since(start))
		span.End()
	}()

	if c.presigner == nil {
		return "", errors.New("presigning is not configured")
	}

	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to presign")
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// HealthCheck verifies S3 connectivity
func (c *S3Client) HealthCheck(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}
