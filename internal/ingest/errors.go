package ingest

import "errors"

var (
	// ErrInvalidInput is returned before any network call for an empty or
	// malformed ticker.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means the upstream response held no recognizable tables.
	ErrNotFound = errors.New("ticker not found")
	// ErrEmptyResponse means the statement endpoint returned no usable body.
	ErrEmptyResponse = errors.New("empty response")
	// ErrSchemaMismatch means a cell or structural node did not have the
	// expected shape. Partial results are never returned with it.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrTreeDesync means a data row could not be joined to a label row.
	ErrTreeDesync = errors.New("label and data trees out of sync")
)
