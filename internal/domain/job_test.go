package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     JobStatus
		to       JobStatus
		expected bool
	}{
		{name: "checkpoint while processing", from: StatusProcessing, to: StatusProcessing, expected: true},
		{name: "processing to completed", from: StatusProcessing, to: StatusCompleted, expected: true},
		{name: "processing to failed", from: StatusProcessing, to: StatusFailed, expected: true},
		{name: "completed to processing", from: StatusCompleted, to: StatusProcessing, expected: false},
		{name: "completed to failed", from: StatusCompleted, to: StatusFailed, expected: false},
		{name: "failed to processing", from: StatusFailed, to: StatusProcessing, expected: false},
		{name: "failed to completed", from: StatusFailed, to: StatusCompleted, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidTransition(tt.from, tt.to))
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, JobStatus("queued").Valid())
}

func newProcessingJob() *ImageJob {
	return &ImageJob{
		ID:       "job-1",
		UserID:   "u1",
		JobType:  JobTypeThumbnail,
		Status:   StatusProcessing,
		Progress: ProgressCreated,
	}
}

func TestImageJob_CheckpointIsMonotonic(t *testing.T) {
	job := newProcessingJob()
	now := time.Now()

	require.NoError(t, job.Checkpoint(ProgressProcessed, now))
	assert.Equal(t, ProgressProcessed, job.Progress)

	require.NoError(t, job.Checkpoint(ProgressStarted, now))
	assert.Equal(t, ProgressProcessed, job.Progress, "a redelivered attempt must not move progress back")
	assert.Equal(t, StatusProcessing, job.Status)

	assert.ErrorIs(t, job.Checkpoint(101, now), ErrInvalidProgress)
}

func TestImageJob_Complete(t *testing.T) {
	job := newProcessingJob()
	require.NoError(t, job.Checkpoint(ProgressStarted, time.Now()))

	require.NoError(t, job.Complete("http://localhost/uploads/thumbnails/u1/a.jpg", time.Now()))
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, ProgressCompleted, job.Progress)
	assert.NotEmpty(t, job.ResultImageURL)
	assert.Empty(t, job.Error)
}

func TestImageJob_FailKeepsProgress(t *testing.T) {
	job := newProcessingJob()
	require.NoError(t, job.Checkpoint(ProgressProcessed, time.Now()))

	require.NoError(t, job.Fail("upload failed", time.Now()))
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, ProgressProcessed, job.Progress)
	assert.Equal(t, "upload failed", job.Error)
	assert.Empty(t, job.ResultImageURL)
}

func TestImageJob_TerminalStatesAreFinal(t *testing.T) {
	completed := newProcessingJob()
	require.NoError(t, completed.Complete("url", time.Now()))

	assert.ErrorIs(t, completed.Fail("late failure", time.Now()), ErrInvalidTransition)
	assert.ErrorIs(t, completed.Checkpoint(ProgressStarted, time.Now()), ErrInvalidTransition)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Equal(t, "url", completed.ResultImageURL)

	failed := newProcessingJob()
	require.NoError(t, failed.Fail("", time.Now()))
	assert.Equal(t, "unknown error", failed.Error)

	assert.ErrorIs(t, failed.Complete("url", time.Now()), ErrInvalidTransition)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Empty(t, failed.ResultImageURL)
}
