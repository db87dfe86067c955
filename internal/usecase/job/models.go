package job

import "thumbnail-service/internal/domain"

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

type SubmitRequest struct {
	UserID           string
	FilePath         string
	OriginalFilename string
	JobType          domain.JobType
	Options          map[string]any
}

type SubmitResult struct {
	JobID            string
	Status           domain.JobStatus
	OriginalFilename string
}

// JobView is a job record together with the live state of its work item.
type JobView struct {
	Job       *domain.ImageJob
	QueueInfo string
}

type ListRequest struct {
	UserID string
	Status string
	Page   int
	Limit  int
}

type Pagination struct {
	Page  int
	Limit int
	Total int
	Pages int
}

type ListResult struct {
	Jobs       []domain.ImageJob
	Pagination Pagination
}

// Pages is ceil(total/limit).
func Pages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
