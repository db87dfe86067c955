package job

import "errors"

var (
	ErrFileRequired      = errors.New("image file is required")
	ErrInvalidFileFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrInvalidOptions    = errors.New("options must be a JSON object")
)
