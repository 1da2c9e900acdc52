package types

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrFormat     = errors.New("unrecognized archive format")
	ErrSecurity   = errors.New("archive entry escapes target directory")
	ErrBackend    = errors.New("storage backend error")
)
