package worker

import "errors"

var (
	ErrProcessing       = errors.New("processing failed")
	ErrInvalidWorkItem  = errors.New("invalid work item")
	ErrInterrupted      = errors.New("processing interrupted")
	ErrRecoveryResubmit = errors.New("failed to resubmit job")
	errConsumerStopped  = errors.New("queue consumer stopped")
)
