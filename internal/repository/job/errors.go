package job

import "errors"

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrTerminalState = errors.New("job is in a terminal state")
	ErrInvalidFilter = errors.New("invalid job filter")
)
