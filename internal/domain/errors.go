package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// ErrMalformedInput marks a record missing required fields or carrying a
	// price outside [0,1]. The offending point is dropped and counted.
	ErrMalformedInput = errors.New("malformed input")
	// ErrInvalidPrice is returned by the bucketizer for prices outside [0,1].
	ErrInvalidPrice = errors.New("invalid price")
	// ErrPartitionMismatch means a calibration table and a live evaluator
	// disagree on bucket boundaries. Fatal for the run.
	ErrPartitionMismatch = errors.New("bucket partition mismatch")
	ErrAlreadyResolved   = errors.New("market already resolved")
)
