package dto

import (
	"time"

	"thumbnail-service/internal/domain"
)

type CreateJobResponse struct {
	JobID            string `json:"jobId"`
	Status           string `json:"status"`
	OriginalFilename string `json:"originalFilename"`
}

type JobResponse struct {
	JobID            string         `json:"jobId"`
	UserID           string         `json:"userId"`
	OriginalFilename string         `json:"originalFilename"`
	ResultImageURL   string         `json:"resultImageUrl,omitempty"`
	JobType          string         `json:"jobType"`
	Options          map[string]any `json:"options"`
	Status           string         `json:"status"`
	Progress         int            `json:"progress"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	QueueInfo        string         `json:"queueInfo,omitempty"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type ListJobsResponse struct {
	Jobs       []JobResponse `json:"jobs"`
	Pagination Pagination    `json:"pagination"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func NewJobResponse(j *domain.ImageJob) JobResponse {
	options := j.Options
	if options == nil {
		options = map[string]any{}
	}
	return JobResponse{
		JobID:            j.ID,
		UserID:           j.UserID,
		OriginalFilename: j.OriginalFilename,
		ResultImageURL:   j.ResultImageURL,
		JobType:          string(j.JobType),
		Options:          options,
		Status:           string(j.Status),
		Progress:         j.Progress,
		Error:            j.Error,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}
