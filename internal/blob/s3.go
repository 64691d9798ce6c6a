package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
)

// S3Handle is an AudioHandle backed by an object in an S3-compatible bucket.
type S3Handle struct {
	client *s3.Client
	bucket string
	key    string
}

// S3Store opens recordings stored under a single bucket/prefix.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds an S3Store from config. S3Endpoint/UsePathStyle support
// S3-compatible services (e.g. MinIO) used in local development.
func NewS3Store(ctx context.Context, cfg *config.Config) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("blob: S3Bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Endpoint != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return &S3Store{client: client, bucket: cfg.S3Bucket, prefix: cfg.S3Prefix}, nil
}

// Handle returns an AudioHandle for the given storage key (unprefixed).
func (s *S3Store) Handle(key string) *S3Handle {
	return &S3Handle{client: s.client, bucket: s.bucket, key: s.prefix + key}
}

// Put uploads audio bytes under key and returns the resulting handle.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader) (*S3Handle, error) {
	fullKey := s.prefix + key
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
		Body:   body,
	})
	if err != nil {
		return nil, fmt.Errorf("blob: put %s: %w", fullKey, err)
	}
	return &S3Handle{client: s.client, bucket: s.bucket, key: fullKey}, nil
}

func (h *S3Handle) Key() string { return h.key }

func (h *S3Handle) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := h.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key),
	})
	if err != nil {
		return nil, fmt.Errorf("blob: get %s: %w", h.key, err)
	}
	return out.Body, nil
}

var _ AudioHandle = (*S3Handle)(nil)
