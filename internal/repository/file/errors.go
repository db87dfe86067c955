package file

import "errors"

var (
	ErrFileNotFound = errors.New("file not found")
	ErrInvalidKey   = errors.New("invalid storage key")
	ErrStorageError = errors.New("storage error")
)
