package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrVehicleNotFound signals a VIN lookup miss. Recoverable: the caller
	// may retry with a different VIN.
	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrClaimNotFound signals a missing claim record.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrSessionNotFound signals an unknown or already-closed wizard session.
	ErrSessionNotFound = errors.New("wizard session not found")

	// ErrWizardBusy signals that a lookup or submission is already in flight
	// for the session.
	ErrWizardBusy = errors.New("wizard operation already in flight")

	// ErrInvalidTransition signals a step change the wizard's state machine
	// does not permit, including operations issued on the wrong step.
	ErrInvalidTransition = errors.New("invalid wizard transition")
)

// ValidationError reports a missing or invalid field at the current wizard
// step. It blocks the transition and is never fatal.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
