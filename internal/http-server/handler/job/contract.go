package job

import (
	"context"
	"io"

	job_uc "thumbnail-service/internal/usecase/job"
)

type jobUsecase interface {
	ValidateUserID(userID string) error
	Submit(ctx context.Context, req job_uc.SubmitRequest) (*job_uc.SubmitResult, error)
	GetJob(ctx context.Context, id string) (*job_uc.JobView, error)
	ListJobs(ctx context.Context, req job_uc.ListRequest) (*job_uc.ListResult, error)
}

type uploadStorage interface {
	SaveOriginal(ctx context.Context, filename string, src io.Reader) (string, error)
	Remove(ctx context.Context, path string) error
}
