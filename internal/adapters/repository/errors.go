package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidChunk  = errors.New("invalid chunk size")
	ErrUnknownDriver = errors.New("unknown database driver")
)
