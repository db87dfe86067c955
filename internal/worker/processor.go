package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"thumbnail-service/internal/domain"
	"thumbnail-service/internal/queue"
	repoJob "thumbnail-service/internal/repository/job"

	"github.com/wb-go/wbf/zlog"
)

// JobProcessor drives one work item through the job lifecycle:
// started (30) -> image processed (70) -> uploaded -> completed (100).
// Every failure after the record is loaded ends the record in FAILED.
type JobProcessor struct {
	repo      jobRepository
	processor imageProcessor
	storage   resultStorage
	tempDir   string
	logger    *zlog.Zerolog
}

func NewJobProcessor(repo jobRepository, processor imageProcessor, storage resultStorage, tempDir string, logger *zlog.Zerolog) *JobProcessor {
	return &JobProcessor{
		repo:      repo,
		processor: processor,
		storage:   storage,
		tempDir:   tempDir,
		logger:    logger,
	}
}

// Process returns nil when the work item needs no further delivery. A
// queue.Permanent error means the failure is recorded on the job and the item
// must not be redelivered. Any other error is retryable.
func (p *JobProcessor) Process(ctx context.Context, item domain.WorkItem) (err error) {
	logger := p.logger.With().
		Str("job_id", item.JobID).
		Str("user_id", item.UserID).
		Str("job_type", string(item.JobType)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Panic recovered while processing job")
			err = p.fail(ctx, item.JobID, fmt.Errorf("%w: panic: %v", ErrProcessing, r))
		}
	}()

	j, err := p.repo.GetByID(ctx, item.JobID)
	if errors.Is(err, repoJob.ErrJobNotFound) {
		logger.Error().Msg("Job record not found, dropping work item")
		return queue.Permanent(fmt.Errorf("%w: job %s not found", ErrInvalidWorkItem, item.JobID))
	}
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(logger, err)
		}
		return fmt.Errorf("failed to load job: %w", err)
	}

	if j.Status.IsTerminal() {
		logger.Info().Str("status", j.Status.String()).Msg("Job already finished, skipping duplicate delivery")
		return nil
	}

	if err := p.repo.Checkpoint(ctx, item.JobID, domain.ProgressStarted); err != nil {
		if errors.Is(err, repoJob.ErrTerminalState) {
			return nil
		}
		if ctx.Err() != nil {
			return interrupted(logger, err)
		}
		return fmt.Errorf("failed to mark job started: %w", err)
	}
	logger.Info().Int("progress", domain.ProgressStarted).Msg("Job processing started")

	resultURL, err := p.run(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(logger, err)
		}
		logger.Error().Err(err).Msg("Job processing failed")
		return p.fail(ctx, item.JobID, err)
	}

	logger.Info().
		Int("progress", domain.ProgressCompleted).
		Str("result_url", resultURL).
		Msg("Job completed")
	return nil
}

func (p *JobProcessor) run(ctx context.Context, item domain.WorkItem) (string, error) {
	if err := p.processor.Supports(item.JobType); err != nil {
		return "", err
	}

	opts, err := domain.ParseOptions(item.JobType, item.Options)
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp(p.tempDir, item.JobID+"-")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create temp dir: %v", ErrProcessing, err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn().Err(err).Str("job_id", item.JobID).Str("dir", dir).Msg("Failed to remove temp dir")
		}
	}()

	filename := domain.OutputFilename(item.JobID, item.JobType, item.OriginalImagePath, outputFormat(opts))
	output := filepath.Join(dir, filename)

	if err := p.processor.Process(ctx, item.JobType, opts, item.OriginalImagePath, output); err != nil {
		return "", fmt.Errorf("%w: image processing: %v", ErrProcessing, err)
	}

	if err := p.repo.Checkpoint(ctx, item.JobID, domain.ProgressProcessed); err != nil {
		return "", fmt.Errorf("failed to record progress: %w", err)
	}

	resultURL, err := p.storage.Upload(ctx, output, domain.ResultKey(item.UserID, filename))
	if err != nil {
		return "", fmt.Errorf("%w: storage upload: %v", ErrProcessing, err)
	}

	if err := p.repo.Complete(ctx, item.JobID, resultURL); err != nil {
		return "", fmt.Errorf("failed to complete job: %w", err)
	}

	return resultURL, nil
}

// fail records cause on the job. When the record is updated the error is
// returned as permanent, since a redelivered item would find a finished job.
func (p *JobProcessor) fail(ctx context.Context, jobID string, cause error) error {
	err := p.repo.Fail(ctx, jobID, cause.Error())
	switch {
	case err == nil:
		return queue.Permanent(cause)
	case errors.Is(err, repoJob.ErrTerminalState):
		p.logger.Info().Str("job_id", jobID).Msg("Job finished by another attempt, ignoring failure")
		return nil
	default:
		p.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to record job failure")
		return fmt.Errorf("%w (failed to record failure: %v)", cause, err)
	}
}

func interrupted(logger zlog.Zerolog, err error) error {
	logger.Warn().Err(err).Msg("Job processing interrupted, leaving it for recovery")
	return fmt.Errorf("%w: %v", ErrInterrupted, err)
}

func outputFormat(opts domain.Options) string {
	if t, ok := opts.(domain.ThumbnailOptions); ok {
		return t.Format
	}
	return ""
}
