package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"audiostore/config"
	"audiostore/logger"
)

// ErrStorageUnavailable is returned when the object storage provider cannot
// be reached or rejects a request; callers must not persist state referencing
// a URL that failed to issue.
var ErrStorageUnavailable = errors.New("object storage unavailable")

// S3Signer issues pre-signed, time-limited GET URLs for stored objects and
// deletes objects that are no longer referenced. It keeps no local state.
type S3Signer struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	timeout       time.Duration
}

// NewS3Signer builds a signer from the process configuration.
func NewS3Signer(ctx context.Context, cfg config.S3Config) (*S3Signer, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3_BUCKET is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	logger.Info("S3 signer initialized (bucket=%s region=%s)", cfg.Bucket, cfg.Region)
	return &S3Signer{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		timeout:       timeout,
	}, nil
}

// PresignGet mints a time-limited GET URL for the given object key. The URL's
// own TTL is independent of any download-link expiry: it only governs how
// long the raw URL stays fetchable once handed out.
func (s *S3Signer) PresignGet(ctx context.Context, objectKey string, ttl time.Duration, downloadFilename string) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("%w: empty object key", ErrStorageUnavailable)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}
	if downloadFilename != "" {
		input.ResponseContentDisposition = aws.String(
			fmt.Sprintf("attachment; filename=%q", downloadFilename))
	}

	result, err := s.presignClient.PresignGetObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"bucket": s.bucket,
			"key":    objectKey,
			"error":  err.Error(),
		}).Error("Failed to presign GET URL")
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return result.URL, nil
}

// DeleteObject removes an object, used when an admin replaces or deletes a
// product file so no orphaned objects accumulate.
func (s *S3Signer) DeleteObject(ctx context.Context, objectKey string) error {
	if objectKey == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
