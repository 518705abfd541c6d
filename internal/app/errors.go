package service

import "errors"

// Sentinel error kinds for this package.
var (
	ErrUnknownStage    = errors.New("unknown recompute stage")
	ErrUnsupportedKind = errors.New("kind not supported by stage")
	ErrUnknownOrder    = errors.New("unknown listing order")
	ErrInvalidLimit    = errors.New("invalid listing limit")
)
