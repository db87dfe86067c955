package worker

import (
	"context"

	"thumbnail-service/internal/domain"
	"thumbnail-service/internal/queue"
)

type jobRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ImageJob, error)
	ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.ImageJob, error)
	Checkpoint(ctx context.Context, id string, progress int) error
	Complete(ctx context.Context, id, resultURL string) error
	Fail(ctx context.Context, id, message string) error
}

type imageProcessor interface {
	Supports(jobType domain.JobType) error
	Process(ctx context.Context, jobType domain.JobType, opts domain.Options, srcPath, dstPath string) error
}

type resultStorage interface {
	Upload(ctx context.Context, srcPath, key string) (string, error)
}

type workSubmitter interface {
	Submit(ctx context.Context, queueName string, payload []byte, opts queue.SubmitOptions) (string, error)
}

type workConsumer interface {
	Consume(ctx context.Context, queueName string, out chan<- *queue.Delivery) error
}
