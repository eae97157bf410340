package ems

import "errors"

var (
	// ErrJobNotFound means the prediction job id does not exist. Caller
	// error, not retryable.
	ErrJobNotFound = errors.New("prediction job not found")

	// ErrEmptySystemSet means the prediction job exists but has no member
	// systems. Caller error, not retryable.
	ErrEmptySystemSet = errors.New("prediction job has no systems")

	// ErrUpstreamUnavailable wraps failures of the measurement or metadata
	// stores. Retrying is up to the caller.
	ErrUpstreamUnavailable = errors.New("upstream store unavailable")
)
