package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition is returned when the requested record kind is not
	// reachable from the device's current state.
	ErrIllegalTransition = errors.New("illegal record transition")
	// ErrAlreadyRemoved is returned when a removal is requested for a device
	// whose active record is already REMOVED. Removal is terminal.
	ErrAlreadyRemoved = errors.New("device already removed")
	// ErrNotLentable is returned when a loan is requested for a device whose
	// is_lentable flag is false. The flag gates lending independently of the
	// current record kind.
	ErrNotLentable = errors.New("device is not lentable")
	// ErrDeviceDeleted is returned when a record is requested for a
	// soft-deleted device.
	ErrDeviceDeleted = errors.New("device is soft-deleted")
)

// ValidationError is a field-scoped input validation failure. It is always
// raised before any persistence happens and is safe to retry after the input
// is corrected.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a field-scoped validation error.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
