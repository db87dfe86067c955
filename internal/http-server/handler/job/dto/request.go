package dto

type ListJobsRequest struct {
	UserID string `validate:"required"`
	Status string
	Page   int
	Limit  int
}
