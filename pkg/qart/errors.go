package qart

import "errors"

// Common errors
var (
	ErrNotFound          = errors.New("object not found")
	ErrInvalidURL        = errors.New("invalid object URL")
	ErrUnsupportedScheme = errors.New("unsupported storage scheme")
)
