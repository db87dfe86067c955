// Package local stores uploads and results on the local filesystem under one
// root directory, which the API serves at /uploads.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"thumbnail-service/internal/repository/file"

	"github.com/google/uuid"
)

const originalsDir = "original"

type FileRepository struct {
	root    string
	baseURL string
}

func NewFileRepository(root, baseURL string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Join(root, originalsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}

	return &FileRepository{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (r *FileRepository) Root() string {
	return r.root
}

// SaveOriginal stores an uploaded file under a generated name that keeps the
// client's extension and returns its path.
func (r *FileRepository) SaveOriginal(ctx context.Context, filename string, src io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.New().String() + strings.ToLower(filepath.Ext(filename))
	dst := filepath.Join(r.root, originalsDir, name)

	if err := writeFile(dst, src); err != nil {
		return "", err
	}

	return dst, nil
}

func (r *FileRepository) Remove(_ context.Context, filePath string) error {
	err := os.Remove(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return file.ErrFileNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: failed to remove %s: %v", file.ErrStorageError, filePath, err)
	}
	return nil
}

// Upload copies a produced file to root/key and returns its public URL.
func (r *FileRepository) Upload(ctx context.Context, srcPath, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key {
		return "", fmt.Errorf("%w: %q", file.ErrInvalidKey, key)
	}

	src, err := os.Open(srcPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", file.ErrFileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %v", file.ErrStorageError, srcPath, err)
	}
	defer src.Close()

	dst := filepath.Join(r.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create dir: %v", file.ErrStorageError, err)
	}
	if err := writeFile(dst, src); err != nil {
		return "", err
	}

	return r.baseURL + "/" + clean, nil
}

func writeFile(dst string, src io.Reader) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", file.ErrStorageError, dst, err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("%w: failed to write %s: %v", file.ErrStorageError, dst, err)
	}

	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("%w: failed to close %s: %v", file.ErrStorageError, dst, err)
	}

	return nil
}
