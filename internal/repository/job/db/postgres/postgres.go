package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"thumbnail-service/internal/domain"
	"thumbnail-service/internal/repository/job"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
)

const jobColumns = `
	id, user_id, original_image_path, original_filename, job_type, options,
	status, progress, result_image_url, error, created_at, updated_at`

type JobsRepository struct {
	db      *dbpg.DB
	retries retry.Strategy
}

func NewJobsRepository(db *dbpg.DB, retries retry.Strategy) *JobsRepository {
	return &JobsRepository{
		db:      db,
		retries: retries,
	}
}

func (r *JobsRepository) Create(ctx context.Context, j *domain.ImageJob) error {
	options, err := json.Marshal(j.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal job options: %w", err)
	}
	if j.Options == nil {
		options = []byte("{}")
	}

	query := `
		INSERT INTO image_jobs (
			id, user_id, original_image_path, original_filename, job_type,
			options, status, progress, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecWithRetry(ctx, r.retries, query,
		j.ID,
		j.UserID,
		j.OriginalImagePath,
		j.OriginalFilename,
		j.JobType,
		options,
		j.Status,
		j.Progress,
		j.CreatedAt,
		j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	return nil
}

func (r *JobsRepository) GetByID(ctx context.Context, id string) (*domain.ImageJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, job.ErrJobNotFound
	}

	query := `SELECT ` + jobColumns + ` FROM image_jobs WHERE id = $1`

	row, err := r.db.QueryRowWithRetry(ctx, r.retries, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, job.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	return j, nil
}

// List returns a page of the user's jobs, newest first.
func (r *JobsRepository) List(ctx context.Context, filter job.Filter, limit, offset int) ([]domain.ImageJob, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + jobColumns + `
		FROM image_jobs
		WHERE user_id = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryWithRetry(ctx, r.retries, query, filter.UserID, string(filter.Status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *JobsRepository) Count(ctx context.Context, filter job.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM image_jobs WHERE user_id = $1 AND ($2::text = '' OR status = $2::text)`

	row, err := r.db.QueryRowWithRetry(ctx, r.retries, query, filter.UserID, string(filter.Status))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to scan count: %w", err)
	}

	return count, nil
}

// ListByStatus returns every job in the given status, oldest first.
func (r *JobsRepository) ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.ImageJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM image_jobs
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryWithRetry(ctx, r.retries, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs by status: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *JobsRepository) Checkpoint(ctx context.Context, id string, progress int) error {
	if progress < 0 || progress > 100 {
		return domain.ErrInvalidProgress
	}

	query := `
		UPDATE image_jobs
		SET progress = GREATEST(progress, $1), error = NULL, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	return r.update(ctx, id, query, progress, time.Now().UTC(), id, domain.StatusProcessing)
}

func (r *JobsRepository) Complete(ctx context.Context, id, resultURL string) error {
	query := `
		UPDATE image_jobs
		SET status = $1, progress = $2, result_image_url = $3, error = NULL, updated_at = $4
		WHERE id = $5 AND status = $6
	`

	return r.update(ctx, id, query,
		domain.StatusCompleted, domain.ProgressCompleted, resultURL, time.Now().UTC(), id, domain.StatusProcessing)
}

func (r *JobsRepository) Fail(ctx context.Context, id, message string) error {
	if message == "" {
		message = "unknown error"
	}

	query := `
		UPDATE image_jobs
		SET status = $1, error = $2, result_image_url = NULL, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	return r.update(ctx, id, query, domain.StatusFailed, message, time.Now().UTC(), id, domain.StatusProcessing)
}

// update runs a guarded write. When no row matched it tells a missing job
// apart from one that already reached a terminal state.
func (r *JobsRepository) update(ctx context.Context, id, query string, args ...any) error {
	if _, err := uuid.Parse(id); err != nil {
		return job.ErrJobNotFound
	}

	result, err := r.db.ExecWithRetry(ctx, r.retries, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	row, err := r.db.QueryRowWithRetry(ctx, r.retries, `SELECT status FROM image_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to query job status: %w", err)
	}

	var status domain.JobStatus
	err = row.Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return job.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to scan job status: %w", err)
	}

	return fmt.Errorf("%w: %s", job.ErrTerminalState, status)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*domain.ImageJob, error) {
	var (
		j         domain.ImageJob
		options   []byte
		resultURL sql.NullString
		jobErr    sql.NullString
	)

	err := s.Scan(
		&j.ID,
		&j.UserID,
		&j.OriginalImagePath,
		&j.OriginalFilename,
		&j.JobType,
		&options,
		&j.Status,
		&j.Progress,
		&resultURL,
		&jobErr,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if len(options) > 0 {
		if err := json.Unmarshal(options, &j.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job options: %w", err)
		}
	}
	j.ResultImageURL = resultURL.String
	j.Error = jobErr.String

	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]domain.ImageJob, error) {
	jobs := make([]domain.ImageJob, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}
