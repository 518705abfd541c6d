package tree

import "errors"

// Sentinel error kinds for this package.
var (
	ErrRootNotFound = errors.New("schema root not found")
	ErrUnknownMode  = errors.New("unknown aggregation mode")
)
