package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"thumbnail-service/internal/domain"
	"thumbnail-service/internal/queue"

	"github.com/wb-go/wbf/zlog"
)

// RecoveryReport summarises one recovery pass.
type RecoveryReport struct {
	Found        int
	Resubmitted  int
	Deduplicated int
	Failed       int
}

// RecoveryScanner resubmits jobs left in PROCESSING by a previous worker
// process. Each job goes in under its idempotency key, so a work item still
// pending in the queue turns the resubmission into a no-op.
type RecoveryScanner struct {
	repo      jobRepository
	queue     workSubmitter
	queueName string
	logger    *zlog.Zerolog
}

func NewRecoveryScanner(repo jobRepository, q workSubmitter, queueName string, logger *zlog.Zerolog) *RecoveryScanner {
	return &RecoveryScanner{
		repo:      repo,
		queue:     q,
		queueName: queueName,
		logger:    logger,
	}
}

// Scan returns an error only when the stuck jobs cannot be listed. A job that
// fails to resubmit is logged and counted.
func (s *RecoveryScanner) Scan(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	jobs, err := s.repo.ListByStatus(ctx, domain.StatusProcessing)
	if err != nil {
		return report, fmt.Errorf("failed to list processing jobs: %w", err)
	}
	report.Found = len(jobs)

	if report.Found == 0 {
		s.logger.Info().Msg("No interrupted jobs found")
		return report, nil
	}

	s.logger.Info().Int("count", report.Found).Msg("Found interrupted jobs, resubmitting")

	for i := range jobs {
		j := &jobs[i]

		err := s.resubmit(ctx, j)
		switch {
		case err == nil:
			report.Resubmitted++
			s.logger.Info().Str("job_id", j.ID).Int("progress", j.Progress).Msg("Job resubmitted")
		case errors.Is(err, queue.ErrDuplicate):
			report.Deduplicated++
			s.logger.Info().Str("job_id", j.ID).Msg("Job still pending in queue, skipping")
		default:
			report.Failed++
			s.logger.Error().Err(err).Str("job_id", j.ID).Msg("Failed to resubmit job")
		}
	}

	s.logger.Info().
		Int("found", report.Found).
		Int("resubmitted", report.Resubmitted).
		Int("deduplicated", report.Deduplicated).
		Int("failed", report.Failed).
		Msg("Recovery scan finished")

	return report, nil
}

func (s *RecoveryScanner) resubmit(ctx context.Context, j *domain.ImageJob) error {
	payload, err := json.Marshal(domain.NewWorkItem(j))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryResubmit, err)
	}

	_, err = s.queue.Submit(ctx, s.queueName, payload, queue.SubmitOptions{
		IdempotencyKey: domain.IdempotencyKey(j.ID),
	})
	if errors.Is(err, queue.ErrDuplicate) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryResubmit, err)
	}
	return nil
}
