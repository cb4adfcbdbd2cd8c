package api

import "errors"

var (
	// ErrValidation classifies client-attributable protocol failures
	ErrValidation = errors.New("validation error")

	// ErrNotFound classifies lookups that matched nothing
	ErrNotFound = errors.New("not found")
)
