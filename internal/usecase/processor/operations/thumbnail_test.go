package operations

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"thumbnail-service/internal/config"
	"thumbnail-service/internal/domain"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = config.ThumbnailConfig{DefaultWidth: 100, DefaultHeight: 100, DefaultQuality: 80}

func writeImage(t *testing.T, name string, w, h int) string {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, imaging.Save(img, p))
	return p
}

func decode(t *testing.T, p string) image.Image {
	t.Helper()
	img, err := imaging.Open(p)
	require.NoError(t, err)
	return img
}

func TestThumbnailer_Apply(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		srcW, srcH int
		opts       domain.ThumbnailOptions
		output     string
		wantW      int
		wantH      int
	}{
		{"defaults", "wide.png", 400, 200, domain.ThumbnailOptions{}, "out.png", 100, 100},
		{"explicit box", "tall.jpg", 120, 480, domain.ThumbnailOptions{Width: 60, Height: 30, Quality: 50}, "out.jpg", 60, 30},
		{"upscale", "tiny.gif", 10, 10, domain.ThumbnailOptions{Width: 40, Height: 20}, "out.gif", 40, 20},
		{"bmp", "src.bmp", 64, 64, domain.ThumbnailOptions{Width: 32}, "out.bmp", 32, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := writeImage(t, tt.source, tt.srcW, tt.srcH)
			dst := filepath.Join(t.TempDir(), tt.output)

			err := NewThumbnailer(defaults).Apply(context.Background(), src, dst, tt.opts)
			require.NoError(t, err)

			bounds := decode(t, dst).Bounds()
			assert.Equal(t, tt.wantW, bounds.Dx())
			assert.Equal(t, tt.wantH, bounds.Dy())
		})
	}
}

func TestThumbnailer_Errors(t *testing.T) {
	th := NewThumbnailer(defaults)
	ctx := context.Background()
	dst := filepath.Join(t.TempDir(), "out.png")

	broken := filepath.Join(t.TempDir(), "broken.png")
	require.NoError(t, os.WriteFile(broken, []byte("not an image"), 0o644))
	assert.Error(t, th.Apply(ctx, broken, dst, domain.ThumbnailOptions{}))

	assert.Error(t, th.Apply(ctx, filepath.Join(t.TempDir(), "missing.png"), dst, domain.ThumbnailOptions{}))

	src := writeImage(t, "ok.png", 10, 10)
	unknown := filepath.Join(t.TempDir(), "out.unknown")
	assert.Error(t, th.Apply(ctx, src, unknown, domain.ThumbnailOptions{}))
	_, err := os.Stat(unknown)
	assert.True(t, os.IsNotExist(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, th.Apply(cancelled, src, dst, domain.ThumbnailOptions{}), context.Canceled)
}
