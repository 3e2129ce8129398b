package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrValidation       = errors.New("validation failed")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUpstream         = errors.New("upstream platform error")
	ErrContextDone      = errors.New("context cancelled")
	ErrLockHeld         = errors.New("lock already held")
)

// ErrorType classifies a failure for the detection result envelope.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeData       ErrorType = "data_access_error"
	ErrorTypeUpstream   ErrorType = "upstream_error"
	ErrorTypeInternal   ErrorType = "internal_error"
)

// ClassifyError maps an error chain onto the coarse failure taxonomy used in
// detection result envelopes and API responses.
func ClassifyError(err error) ErrorType {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return ErrorTypeValidation
	case errors.Is(err, ErrStoreUnavailable):
		return ErrorTypeData
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrRateLimited):
		return ErrorTypeUpstream
	default:
		return ErrorTypeInternal
	}
}
