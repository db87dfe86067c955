package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"thumbnail-service/internal/domain"
	"thumbnail-service/internal/queue"
	repoJob "thumbnail-service/internal/repository/job"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"
)

const userIDRules = "required,max=128,printascii,excludesall=/\\?#%"

type JobUsecase struct {
	repo      jobRepository
	queue     workQueue
	queueName string
	validate  *validator.Validate
	logger    *zlog.Zerolog
	now       func() time.Time
}

func NewJobUsecase(repo jobRepository, q workQueue, queueName string, logger *zlog.Zerolog) *JobUsecase {
	return &JobUsecase{
		repo:      repo,
		queue:     q,
		queueName: queueName,
		validate:  validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ValidateUserID rejects owner ids that are missing or cannot be used as a
// storage path segment.
func (u *JobUsecase) ValidateUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if err := u.validate.Var(userID, userIDRules); err != nil || userID == "." || userID == ".." {
		return fmt.Errorf("%w: userId is invalid", ErrValidation)
	}
	return nil
}

// Submit creates the job record and hands the work item to the queue. The two
// writes are not atomic: when the queue rejects the item the record is marked
// failed before the error is returned.
func (u *JobUsecase) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := u.ValidateUserID(req.UserID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FilePath) == "" {
		return nil, fmt.Errorf("%w: image file is required", ErrValidation)
	}

	jobType := req.JobType
	if jobType == "" {
		jobType = domain.JobTypeThumbnail
	}

	opts, err := domain.ParseOptions(jobType, req.Options)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	now := u.now()
	j := &domain.ImageJob{
		ID:                uuid.New().String(),
		UserID:            strings.TrimSpace(req.UserID),
		OriginalImagePath: req.FilePath,
		OriginalFilename:  req.OriginalFilename,
		JobType:           jobType,
		Options:           opts.Map(),
		Status:            domain.StatusProcessing,
		Progress:          domain.ProgressCreated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := u.repo.Create(ctx, j); err != nil {
		u.logger.Error().Err(err).Str("user_id", j.UserID).Msg("Failed to create job")
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := u.enqueue(ctx, j); err != nil {
		if failErr := u.repo.Fail(ctx, j.ID, err.Error()); failErr != nil {
			u.logger.Error().Err(failErr).Str("job_id", j.ID).Msg("Failed to mark job failed")
		}
		return nil, err
	}

	u.logger.Info().
		Str("job_id", j.ID).
		Str("user_id", j.UserID).
		Str("job_type", string(j.JobType)).
		Msg("Job created and queued for processing")

	return &SubmitResult{
		JobID:            j.ID,
		Status:           j.Status,
		OriginalFilename: j.OriginalFilename,
	}, nil
}

func (u *JobUsecase) enqueue(ctx context.Context, j *domain.ImageJob) error {
	payload, err := json.Marshal(domain.NewWorkItem(j))
	if err != nil {
		return fmt.Errorf("failed to marshal work item: %w", err)
	}

	_, err = u.queue.Submit(ctx, u.queueName, payload, queue.SubmitOptions{
		IdempotencyKey: domain.IdempotencyKey(j.ID),
	})
	if err != nil && !errors.Is(err, queue.ErrDuplicate) {
		u.logger.Error().Err(err).Str("job_id", j.ID).Msg("Failed to submit work item")
		return fmt.Errorf("%w: failed to enqueue job: %v", ErrQueueError, err)
	}

	return nil
}

func (u *JobUsecase) GetJob(ctx context.Context, id string) (*JobView, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}

	j, err := u.repo.GetByID(ctx, id)
	if errors.Is(err, repoJob.ErrJobNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	state, err := u.queue.Status(ctx, u.queueName, domain.IdempotencyKey(id))
	if err != nil {
		u.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to get queue status")
		state = queue.StateUnknown
	}

	return &JobView{
		Job:       j,
		QueueInfo: queue.DisplayStatus(state),
	}, nil
}

// ListJobs pages through a user's jobs, newest first. An unknown status filter
// is ignored.
func (u *JobUsecase) ListJobs(ctx context.Context, req ListRequest) (*ListResult, error) {
	if err := u.ValidateUserID(req.UserID); err != nil {
		return nil, err
	}

	page := req.Page
	if page < 1 {
		page = DefaultPage
	}
	limit := req.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if page-1 > math.MaxInt/limit {
		return nil, fmt.Errorf("%w: page is out of range", ErrValidation)
	}

	filter := repoJob.Filter{UserID: strings.TrimSpace(req.UserID)}
	if status := domain.JobStatus(strings.ToLower(req.Status)); status.Valid() {
		filter.Status = status
	}

	total, err := u.repo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	jobs, err := u.repo.List(ctx, filter, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return &ListResult{
		Jobs: jobs,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: Pages(total, limit),
		},
	}, nil
}
