package reservation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"voltslot/models"
)

// ValidationError is malformed or out-of-policy input the caller can fix.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError means a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// AccessDeniedError is an ownership or role mismatch.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return "access denied: " + e.Reason
}

// IncompatibleConnectorError lists both sides' standards so the client can pick another connector.
type IncompatibleConnectorError struct {
	Required  string
	Supported []string
}

func (e *IncompatibleConnectorError) Error() string {
	return fmt.Sprintf("connector standard %s is not supported by vehicle (supports %s)",
		e.Required, strings.Join(e.Supported, ", "))
}

// SlotUnavailableError carries the windows that block the requested one.
type SlotUnavailableError struct {
	ConnectorID string
	Conflicts   []models.Interval
}

func (e *SlotUnavailableError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("[%s, %s)", c.Start.Format(time.RFC3339), c.End.Format(time.RFC3339)))
	}
	return fmt.Sprintf("connector %s is unavailable: conflicts with %s", e.ConnectorID, strings.Join(parts, ", "))
}

// InvalidTransitionError is a status change outside the transition table.
type InvalidTransitionError struct {
	Current models.ReservationStatus
	Target  models.ReservationStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.Current, e.Target)
}

// CancellationWindowClosedError rejects user cancellations too close to start.
type CancellationWindowClosedError struct {
	StartTime time.Time
	Cutoff    time.Duration
}

func (e *CancellationWindowClosedError) Error() string {
	return fmt.Sprintf("cancellation window closed: reservations cannot be canceled within %s of start (%s)",
		e.Cutoff, e.StartTime.Format(time.RFC3339))
}

// InvalidCredentialError is a QR/OTP mismatch at check-in.
type InvalidCredentialError struct{}

func (e *InvalidCredentialError) Error() string {
	return "invalid check-in credential"
}

// CredentialGenerationFailedError means no unique QR token could be produced.
type CredentialGenerationFailedError struct {
	Attempts int
	Err      error
}

func (e *CredentialGenerationFailedError) Error() string {
	return fmt.Sprintf("credential generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *CredentialGenerationFailedError) Unwrap() error { return e.Err }

// StoreUnavailableError is a transient persistence failure; workers retry it.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var su *StoreUnavailableError
	return errors.As(err, &su)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
