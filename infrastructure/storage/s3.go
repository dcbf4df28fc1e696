package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sethvargo/go-retry"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

var _ ports.ArtifactStore = (*S3Store)(nil)

const backendS3 = "s3"

// S3API is the subset of *s3.Client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Config describes an S3-compatible endpoint such as MinIO.
type S3Config struct {
	// Endpoint is the base URL, e.g. "http://127.0.0.1:9000". Empty uses AWS.
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Client connects to the endpoint in cfg with static credentials.
func NewS3Client(cfg S3Config) *s3.Client {
	return s3.NewFromConfig(aws.Config{Region: cfg.Region}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.AccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		}
	})
}

// S3Store keeps artifacts as objects in one bucket. Each Put is a single
// PutObject, so readers never see a partial object.
type S3Store struct {
	client     S3API
	bucket     string
	prefix     string
	maxRetries uint64
	backoff    time.Duration
}

// S3Option configures an S3Store.
type S3Option func(*S3Store)

// WithPrefix namespaces every key under prefix.
func WithPrefix(prefix string) S3Option { return func(s *S3Store) { s.prefix = prefix } }

// WithRetries sets how many times a transient failure is retried and the
// initial Fibonacci backoff.
func WithRetries(n uint64, backoff time.Duration) S3Option {
	return func(s *S3Store) {
		s.maxRetries = n
		s.backoff = backoff
	}
}

// NewS3Store returns a store writing to bucket through client.
func NewS3Store(client S3API, bucket string, opts ...S3Option) (*S3Store, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client can't be nil: %w", domain.ErrInvalidConfiguration)
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required: %w", domain.ErrInvalidConfiguration)
	}
	s := &S3Store{
		client:     client,
		bucket:     bucket,
		maxRetries: 5,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// do runs task with Fibonacci backoff. Errors the task does not mark
// retryable end the loop immediately.
func (s *S3Store) do(ctx context.Context, op, key string, task func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(s.maxRetries, retry.NewFibonacci(s.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := task(ctx)
		if err != nil && transient(err) {
			slog.WarnContext(ctx, "s3 operation failed, will retry", "op", op, "key", key, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return ports.NewStorageError(backendS3, key, op, err)
	}
	return nil
}

// Put uploads data as one object.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	return s.do(ctx, "put", key, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(s.objectKey(key)),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		return err
	})
}

// Get downloads the object stored under key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.do(ctx, "get", key, func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		if err != nil {
			return notFound(err)
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Exists reports whether an object is stored under key.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	err := s.do(ctx, "exists", key, func(ctx context.Context) error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		if err != nil {
			return notFound(err)
		}
		return nil
	})
	if errors.Is(err, domain.ErrArtifactNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// notFound maps the SDK's missing-object errors onto domain.ErrArtifactNotFound.
func notFound(err error) error {
	var noKey *types.NoSuchKey
	var missing *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &missing) {
		return fmt.Errorf("%w: %v", domain.ErrArtifactNotFound, err)
	}
	return err
}

// transient reports whether err is worth retrying.
func transient(err error) bool {
	switch {
	case errors.Is(err, domain.ErrArtifactNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
