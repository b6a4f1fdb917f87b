/*
errors.go - Error types for the stock engine

ERROR CATEGORIES:
  1. Configuration errors - invalid schedule; the driver stays stopped
  2. Data errors - bad timestamps on one medication; skipped, batch continues
  3. Conflict errors - a manual edit raced a deduction; retried next tick
  4. Validation errors - manual stock actions with bad input; returned to caller

USAGE:
    if errors.Is(err, stock.ErrConcurrentModification) {
        // skip, the next tick re-evaluates from the current row
    }

SEE ALSO:
  - applicator.go: returns conflict and duplicate errors
  - policy.go: returns TimestampError
  - service.go: returns ValidationError
*/
package stock

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrMedicationNotFound = errors.New("medication not found")
	ErrUserNotFound       = errors.New("user not found")

	// ErrConcurrentModification is returned when the medication row changed
	// between read and write.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateDeduction is returned when an automatic deduction for the
	// same (medication, action, occurrence day) already exists.
	ErrDuplicateDeduction = errors.New("deduction already recorded for this occurrence")

	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrFutureTimestamp  = errors.New("timestamp is in the future")

	ErrValidation    = errors.New("validation failed")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrUnknownAction = errors.New("unknown stock action")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ValidationErrors collects every field problem of one request.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	msg := ""
	for i, e := range es {
		if i > 0 {
			msg += ", "
		}
		msg += e.Error()
	}
	return msg
}

func (es ValidationErrors) Unwrap() error {
	return ErrValidation
}

// TimestampError reports a stored timestamp the engine cannot trust.
type TimestampError struct {
	MedicationID MedicationID
	Field        string
	Raw          string
	Err          error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("medication %s: %s %q: %v", e.MedicationID, e.Field, e.Raw, e.Err)
}

func (e *TimestampError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the next tick may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsDataError returns true if the medication's stored data is unusable.
func IsDataError(err error) bool {
	return errors.Is(err, ErrInvalidTimestamp) || errors.Is(err, ErrFutureTimestamp)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrUnknownAction)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMedicationNotFound) || errors.Is(err, ErrUserNotFound)
}
