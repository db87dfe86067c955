package domain

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// WorkItem is the queue payload handed to the job processor.
type WorkItem struct {
	JobID             string         `json:"jobId"`
	OriginalImagePath string         `json:"originalImagePath"`
	UserID            string         `json:"userId"`
	JobType           JobType        `json:"jobType"`
	Options           map[string]any `json:"options"`
}

func NewWorkItem(job *ImageJob) WorkItem {
	return WorkItem{
		JobID:             job.ID,
		OriginalImagePath: job.OriginalImagePath,
		UserID:            job.UserID,
		JobType:           job.JobType,
		Options:           job.Options,
	}
}

const (
	DefaultQueueName     = "image-processing"
	IdempotencyKeyPrefix = "retry-"
	PathPrefixThumbnail  = "thumbnails/"
)

// IdempotencyKey is the work item id a job is submitted under. While an item
// with this key is pending in the queue, a second submission is rejected.
func IdempotencyKey(jobID string) string {
	return IdempotencyKeyPrefix + jobID
}

// OutputFilename names the produced file of a job. The extension follows the
// requested format, falling back to the source file's extension.
func OutputFilename(jobID string, jobType JobType, sourcePath, format string) string {
	ext := strings.ToLower(filepath.Ext(sourcePath))
	if format != "" {
		ext = "." + strings.ToLower(format)
	}
	if ext == "" || ext == ".webp" {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s_%s%s", jobID, jobType, ext)
}

// ResultKey is the durable storage key of a job result.
func ResultKey(userID, filename string) string {
	return path.Join(strings.TrimSuffix(PathPrefixThumbnail, "/"), userID, filename)
}
