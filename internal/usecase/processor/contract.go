package processor

import (
	"context"

	"thumbnail-service/internal/domain"
)

// operation is the processing strategy of one job type.
type operation interface {
	JobType() domain.JobType
	Apply(ctx context.Context, srcPath, dstPath string, opts domain.Options) error
}
