package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupportedJobType = errors.New("unsupported job type")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidProgress    = errors.New("progress must be between 0 and 100")
)

type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

func (s JobStatus) String() string {
	return string(s)
}

func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

// ValidTransitions lists every status change a job record may go through.
// PROCESSING->PROCESSING is a checkpoint write.
var ValidTransitions = []Transition{
	{From: StatusProcessing, To: StatusProcessing},
	{From: StatusProcessing, To: StatusCompleted},
	{From: StatusProcessing, To: StatusFailed},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Progress checkpoints written by the job processor.
const (
	ProgressCreated   = 0
	ProgressStarted   = 30
	ProgressProcessed = 70
	ProgressCompleted = 100
)

type JobType string

const (
	JobTypeThumbnail JobType = "thumbnail"
)

var SupportedJobTypes = []JobType{JobTypeThumbnail}

func (t JobType) Valid() bool {
	for _, s := range SupportedJobTypes {
		if s == t {
			return true
		}
	}
	return false
}

// ImageJob is the persisted record of one thumbnail-generation request.
type ImageJob struct {
	ID                string
	UserID            string
	OriginalImagePath string
	OriginalFilename  string
	JobType           JobType
	Options           map[string]any
	Status            JobStatus
	Progress          int
	ResultImageURL    string
	Error             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Checkpoint records a progress value while the job is processing. Progress
// never goes backwards, so a redelivered attempt re-affirming an earlier
// checkpoint leaves the stored value untouched.
func (j *ImageJob) Checkpoint(progress int, now time.Time) error {
	if progress < 0 || progress > 100 {
		return ErrInvalidProgress
	}
	if !IsValidTransition(j.Status, StatusProcessing) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusProcessing)
	}
	if progress > j.Progress {
		j.Progress = progress
	}
	j.Error = ""
	j.UpdatedAt = now
	return nil
}

func (j *ImageJob) Complete(resultURL string, now time.Time) error {
	if !IsValidTransition(j.Status, StatusCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusCompleted)
	}
	j.Status = StatusCompleted
	j.Progress = ProgressCompleted
	j.ResultImageURL = resultURL
	j.Error = ""
	j.UpdatedAt = now
	return nil
}

// Fail moves the job to FAILED, leaving progress where the attempt stopped.
func (j *ImageJob) Fail(message string, now time.Time) error {
	if !IsValidTransition(j.Status, StatusFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusFailed)
	}
	if message == "" {
		message = "unknown error"
	}
	j.Status = StatusFailed
	j.Error = message
	j.ResultImageURL = ""
	j.UpdatedAt = now
	return nil
}
