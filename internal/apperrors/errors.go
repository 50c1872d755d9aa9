package apperrors

import "errors"

var (
	ErrConfig         = errors.New("invalid configuration")
	ErrSchemaConflict = errors.New("schema conflict")
	ErrEmptyLiveSet   = errors.New("source reported no live records")
)
