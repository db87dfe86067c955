package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"thumbnail-service/internal/repository/file"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRepository_SaveOriginalAndRemove(t *testing.T) {
	root := t.TempDir()
	repo, err := NewFileRepository(root, "http://localhost:3000/uploads")
	require.NoError(t, err)
	ctx := context.Background()

	p, err := repo.SaveOriginal(ctx, "Cat.PNG", strings.NewReader("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "original"), filepath.Dir(p))
	assert.Equal(t, ".png", filepath.Ext(p))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	require.NoError(t, repo.Remove(ctx, p))
	assert.ErrorIs(t, repo.Remove(ctx, p), file.ErrFileNotFound)
}

func TestFileRepository_Upload(t *testing.T) {
	root := t.TempDir()
	repo, err := NewFileRepository(root, "http://localhost:3000/uploads/")
	require.NoError(t, err)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "job-1_thumbnail.jpg")
	require.NoError(t, os.WriteFile(src, []byte("thumb"), 0o644))

	url, err := repo.Upload(ctx, src, "thumbnails/user-1/job-1_thumbnail.jpg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/uploads/thumbnails/user-1/job-1_thumbnail.jpg", url)

	data, err := os.ReadFile(filepath.Join(root, "thumbnails", "user-1", "job-1_thumbnail.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "thumb", string(data))
}

func TestFileRepository_UploadErrors(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir(), "http://localhost:3000/uploads")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.Upload(ctx, filepath.Join(t.TempDir(), "missing.jpg"), "thumbnails/u/x.jpg")
	assert.ErrorIs(t, err, file.ErrFileNotFound)

	src := filepath.Join(t.TempDir(), "x.jpg")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	for _, key := range []string{"", "../escape.jpg", "thumbnails/../../escape.jpg", "/abs.jpg"} {
		_, err = repo.Upload(ctx, src, key)
		assert.ErrorIs(t, err, file.ErrInvalidKey, key)
	}
}
