package minio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"thumbnail-service/internal/config"
	"thumbnail-service/internal/repository/file"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"
)

type fakeStore struct {
	buckets  map[string]bool
	objects  map[string]string
	types    map[string]string
	putErrs  []error
	putCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		buckets: make(map[string]bool),
		objects: make(map[string]string),
		types:   make(map[string]string),
	}
}

func (f *fakeStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeStore) FPutObject(_ context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.putCalls++
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		return minio.UploadInfo{}, err
	}
	f.objects[bucket+"/"+object] = filePath
	f.types[bucket+"/"+object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object}, nil
}

var testCfg = config.MinIOConfig{Endpoint: "minio:9000", Bucket: "thumbnails"}

func writePNG(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "job-1_thumbnail.png")
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	require.NoError(t, os.WriteFile(p, png, 0o644))
	return p
}

func TestFileRepository_CreatesBucketAndUploads(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	repo, err := NewMinIORepository(ctx, store, testCfg, "", retry.Strategy{Attempts: 1})
	require.NoError(t, err)
	assert.True(t, store.buckets["thumbnails"])

	url, err := repo.Upload(ctx, writePNG(t), "thumbnails/user-1/job-1_thumbnail.png")
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/thumbnails/thumbnails/user-1/job-1_thumbnail.png", url)
	assert.Equal(t, "image/png", store.types["thumbnails/thumbnails/user-1/job-1_thumbnail.png"])
}

func TestFileRepository_PublicBaseURL(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	repo, err := NewMinIORepository(ctx, store, testCfg, "https://cdn.example.com/", retry.Strategy{Attempts: 1})
	require.NoError(t, err)

	url, err := repo.Upload(ctx, writePNG(t), "thumbnails/u/x.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/thumbnails/u/x.png", url)
}

func TestFileRepository_RetriesUpload(t *testing.T) {
	store := newFakeStore()
	store.putErrs = []error{errors.New("connection reset")}
	ctx := context.Background()

	repo, err := NewMinIORepository(ctx, store, testCfg, "", retry.Strategy{Attempts: 2, Delay: 0, Backoff: 1})
	require.NoError(t, err)

	_, err = repo.Upload(ctx, writePNG(t), "thumbnails/u/x.png")
	require.NoError(t, err)
	assert.Equal(t, 2, store.putCalls)
}

func TestFileRepository_UploadErrors(t *testing.T) {
	store := newFakeStore()
	store.putErrs = []error{errors.New("down"), errors.New("down")}
	ctx := context.Background()

	repo, err := NewMinIORepository(ctx, store, testCfg, "", retry.Strategy{Attempts: 2})
	require.NoError(t, err)

	_, err = repo.Upload(ctx, writePNG(t), "thumbnails/u/x.png")
	assert.ErrorIs(t, err, file.ErrStorageError)

	_, err = repo.Upload(ctx, filepath.Join(t.TempDir(), "missing.png"), "thumbnails/u/x.png")
	assert.ErrorIs(t, err, file.ErrFileNotFound)

	_, err = repo.Upload(ctx, writePNG(t), "../x.png")
	assert.ErrorIs(t, err, file.ErrInvalidKey)
}

func TestFileRepository_RetryBackoff(t *testing.T) {
	store := newFakeStore()
	store.putErrs = []error{errors.New("slow down"), errors.New("slow down")}
	ctx := context.Background()

	repo, err := NewMinIORepository(ctx, store, testCfg, "", retry.Strategy{Attempts: 3, Delay: 10 * time.Millisecond, Backoff: 2})
	require.NoError(t, err)

	start := time.Now()
	url, err := repo.Upload(ctx, writePNG(t), "thumbnails/u/x.png")
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/thumbnails/thumbnails/u/x.png", url)
	assert.Equal(t, 3, store.putCalls)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestFileRepository_UploadStopsOnCancel(t *testing.T) {
	store := newFakeStore()
	store.putErrs = []error{errors.New("down"), errors.New("down"), errors.New("down")}

	repo, err := NewMinIORepository(context.Background(), store, testCfg, "", retry.Strategy{Attempts: 3, Delay: time.Hour, Backoff: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		_, err := repo.Upload(ctx, writePNG(t), "thumbnails/u/x.png")
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, file.ErrStorageError)
	case <-time.After(2 * time.Second):
		t.Fatal("upload kept retrying after cancellation")
	}
	assert.LessOrEqual(t, store.putCalls, 1)
}
