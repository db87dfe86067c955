package operations

import (
	"context"
	"fmt"
	"image"
	"os"

	"thumbnail-service/internal/config"
	"thumbnail-service/internal/domain"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Thumbnailer crops and scales an image to exactly the requested box, keeping
// the centre of the source ("cover" fit).
type Thumbnailer struct {
	defaults config.ThumbnailConfig
}

func NewThumbnailer(defaults config.ThumbnailConfig) *Thumbnailer {
	return &Thumbnailer{defaults: defaults}
}

func (t *Thumbnailer) JobType() domain.JobType {
	return domain.JobTypeThumbnail
}

func (t *Thumbnailer) Apply(ctx context.Context, srcPath, dstPath string, opts domain.Options) error {
	thumbOpts, ok := opts.(domain.ThumbnailOptions)
	if !ok {
		return fmt.Errorf("%w: expected thumbnail options, got %T", domain.ErrInvalidOptions, opts)
	}

	width, height, quality := t.resolve(thumbOpts)

	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	thumbnail := imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)

	if err := save(thumbnail, dstPath, quality); err != nil {
		return err
	}

	return nil
}

func (t *Thumbnailer) resolve(opts domain.ThumbnailOptions) (width, height, quality int) {
	width, height, quality = opts.Width, opts.Height, opts.Quality
	if width == 0 {
		width = t.defaults.DefaultWidth
	}
	if height == 0 {
		height = t.defaults.DefaultHeight
	}
	if quality == 0 {
		quality = t.defaults.DefaultQuality
	}
	return width, height, quality
}

// save encodes by the destination extension. A partially written file is
// removed.
func save(img image.Image, dstPath string, quality int) error {
	if err := imaging.Save(img, dstPath, imaging.JPEGQuality(quality)); err != nil {
		os.Remove(dstPath)
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return nil
}
