package job

import "errors"

var (
	ErrValidation  = errors.New("validation failed")
	ErrJobNotFound = errors.New("job not found")
	ErrQueueError  = errors.New("message queue error")
)
