package apperr

import "errors"

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrMissingColumn = errors.New("missing column")
	ErrCycle         = errors.New("parent cycle")
	ErrPartialWrite  = errors.New("partial write")
)
