package job

import "thumbnail-service/internal/domain"

// Filter narrows a job listing. An empty Status matches every status.
type Filter struct {
	UserID string
	Status domain.JobStatus
}

func (f Filter) Validate() error {
	if f.UserID == "" {
		return ErrInvalidFilter
	}
	if f.Status != "" && !f.Status.Valid() {
		return ErrInvalidFilter
	}
	return nil
}
