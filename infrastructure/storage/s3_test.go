package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

// fakeS3 is an in-memory S3API that can fail the first N calls.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failures int
	calls    int
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) fail() error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset by peer")
	}
	return nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	if _, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func newS3Store(t *testing.T, client S3API) *S3Store {
	t.Helper()
	s, err := NewS3Store(client, "models", WithPrefix("bank"), WithRetries(3, time.Millisecond))
	require.NoError(t, err)
	return s
}

func TestS3Store_PutGetExists(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newS3Store(t, fake)

	ok, err := s.Exists(ctx, "preprocessors/d.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "preprocessors/d.json", []byte("payload")))
	assert.Contains(t, fake.objects, "models/bank/preprocessors/d.json")

	ok, err = s.Exists(ctx, "preprocessors/d.json")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := s.Get(ctx, "preprocessors/d.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestS3Store_RetriesTransientFailures(t *testing.T) {
	fake := newFakeS3()
	fake.failures = 2
	s := newS3Store(t, fake)

	require.NoError(t, s.Put(context.Background(), "k", []byte("v")))
	assert.Equal(t, 3, fake.calls)
}

func TestS3Store_GivesUpAfterMaxRetries(t *testing.T) {
	fake := newFakeS3()
	fake.failures = 10
	s := newS3Store(t, fake)

	err := s.Put(context.Background(), "k", []byte("v"))
	require.Error(t, err)
	assert.Equal(t, 4, fake.calls, "one attempt plus three retries")

	var serr *ports.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "s3", serr.Backend)
	assert.Equal(t, "put", serr.Operation)
}

func TestS3Store_MissingObjectIsNotRetried(t *testing.T) {
	fake := newFakeS3()
	s := newS3Store(t, fake)

	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrArtifactNotFound)
	assert.Equal(t, 1, fake.calls)
}

func TestNewS3Store_Validation(t *testing.T) {
	_, err := NewS3Store(nil, "bucket")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = NewS3Store(newFakeS3(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestNewS3Client(t *testing.T) {
	client := NewS3Client(S3Config{
		Endpoint:  "http://127.0.0.1:9000",
		Region:    "us-east-1",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NotNil(t, client)
	assert.Equal(t, "us-east-1", client.Options().Region)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(client.Options().BaseEndpoint))
	assert.True(t, client.Options().UsePathStyle)
}
