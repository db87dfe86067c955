package job

import (
	"context"

	"thumbnail-service/internal/domain"
	"thumbnail-service/internal/queue"
	repoJob "thumbnail-service/internal/repository/job"
)

type jobRepository interface {
	Create(ctx context.Context, j *domain.ImageJob) error
	GetByID(ctx context.Context, id string) (*domain.ImageJob, error)
	List(ctx context.Context, filter repoJob.Filter, limit, offset int) ([]domain.ImageJob, error)
	Count(ctx context.Context, filter repoJob.Filter) (int, error)
	Fail(ctx context.Context, id, message string) error
}

type workQueue interface {
	Submit(ctx context.Context, queueName string, payload []byte, opts queue.SubmitOptions) (string, error)
	Status(ctx context.Context, queueName, itemID string) (queue.State, error)
}
