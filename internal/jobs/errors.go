package jobs

import (
	"context"
	"errors"
	"net"

	"thumbforge-backend/internal/models"
)

var (
	// ErrInvalidRequest marks missing or malformed submit input. No record is created.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound is returned by stores and the manager for an unknown job id.
	ErrNotFound = errors.New("thumbnail not found")
	// ErrStorage marks any record store failure.
	ErrStorage = errors.New("storage failure")
	// ErrConflict is returned when a descriptive update lost a race with a transition.
	ErrConflict = errors.New("thumbnail changed concurrently")
	// ErrIllegalTransition is returned by stores when a mutator breaks the state machine.
	ErrIllegalTransition = errors.New("illegal status transition")

	// Provider failure classes. Providers wrap their errors with one of these.
	ErrProviderTimeout         = errors.New("provider timed out")
	ErrProviderUnavailable     = errors.New("provider unavailable")
	ErrProviderInvalidResponse = errors.New("provider returned an invalid response")
)

// ValidationError describes which submit field was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// StorageError wraps a record store failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "failed to " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ProviderError carries a classified provider failure.
type ProviderError struct {
	Reason models.FailureReason
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's reason.
func (e *ProviderError) Is(target error) bool {
	switch e.Reason {
	case models.ReasonProviderTimeout:
		return target == ErrProviderTimeout
	case models.ReasonProviderUnavailable:
		return target == ErrProviderUnavailable
	case models.ReasonProviderInvalidResponse:
		return target == ErrProviderInvalidResponse
	}
	return false
}

// ClassifyProviderError maps any provider error onto a failure reason.
// Unrecognized errors are treated as the provider being unavailable.
func ClassifyProviderError(err error) models.FailureReason {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Reason != "" {
		return pe.Reason
	}
	switch {
	case errors.Is(err, ErrProviderTimeout), errors.Is(err, context.DeadlineExceeded):
		return models.ReasonProviderTimeout
	case errors.Is(err, ErrProviderInvalidResponse):
		return models.ReasonProviderInvalidResponse
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ReasonProviderTimeout
	}
	return models.ReasonProviderUnavailable
}
