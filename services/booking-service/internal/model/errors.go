package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrSlotUnavailable      = errors.New("time slot is no longer available")
	ErrAssignmentImpossible = errors.New("no eligible participant for slot")
	ErrAlreadyCancelled     = errors.New("booking is not confirmed")
)

// ValidationError rejects malformed input before any computation runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
