package scoring

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidWindow = errors.New("invalid score window")
	ErrNoWeights     = errors.New("no composite weights")
)
