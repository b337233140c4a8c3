package kv

import "errors"

// ErrNotConfigured is returned when no store address was provided.
var ErrNotConfigured = errors.New("kv: store address not configured")
