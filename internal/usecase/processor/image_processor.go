package processor

import (
	"context"
	"fmt"
	"time"

	"thumbnail-service/internal/config"
	"thumbnail-service/internal/domain"
	"thumbnail-service/internal/usecase/processor/operations"

	"github.com/wb-go/wbf/zlog"
)

// ImageProcessor dispatches a job to the operation registered for its type.
type ImageProcessor struct {
	operations map[domain.JobType]operation
	logger     *zlog.Zerolog
}

func NewImageProcessor(cfg config.ThumbnailConfig, logger *zlog.Zerolog) *ImageProcessor {
	return newImageProcessor(logger, operations.NewThumbnailer(cfg))
}

func newImageProcessor(logger *zlog.Zerolog, ops ...operation) *ImageProcessor {
	p := &ImageProcessor{
		operations: make(map[domain.JobType]operation, len(ops)),
		logger:     logger,
	}
	for _, op := range ops {
		p.operations[op.JobType()] = op
	}
	return p
}

// Supports reports domain.ErrUnsupportedJobType for job types without an
// operation.
func (p *ImageProcessor) Supports(jobType domain.JobType) error {
	if _, ok := p.operations[jobType]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedJobType, jobType)
	}
	return nil
}

// Process reads srcPath, transforms it and writes the result to dstPath.
func (p *ImageProcessor) Process(ctx context.Context, jobType domain.JobType, opts domain.Options, srcPath, dstPath string) error {
	op, ok := p.operations[jobType]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedJobType, jobType)
	}

	start := time.Now()
	if err := op.Apply(ctx, srcPath, dstPath, opts); err != nil {
		p.logger.Error().
			Err(err).
			Str("job_type", string(jobType)).
			Str("source", srcPath).
			Msg("Image operation failed")
		return err
	}

	p.logger.Debug().
		Str("job_type", string(jobType)).
		Str("output", dstPath).
		Dur("took", time.Since(start)).
		Msg("Image operation completed")

	return nil
}
