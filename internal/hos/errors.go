package hos

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTelemetry is returned for malformed ingest payloads. Terminal.
	ErrInvalidTelemetry = errors.New("invalid telemetry")

	// ErrDeviceNotFound is returned when the device id cannot be resolved. Terminal.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDriverNotFound is returned by read paths when the driver is not in the
	// caller's tenant
	ErrDriverNotFound = errors.New("driver not found")

	// ErrConcurrencyConflict means another writer changed the driver's open
	// interval between our read and our write. Retried locally.
	ErrConcurrencyConflict = errors.New("concurrent duty status update")

	// ErrStorage wraps transient persistence failures. Retried locally.
	ErrStorage = errors.New("storage error")
)

// ValidationError names the telemetry field that failed validation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid telemetry: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidTelemetry
}

// IsRetryable reports whether a transition error may succeed on a fresh attempt
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrStorage)
}
