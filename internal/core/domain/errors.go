package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by a service matches exactly one of
// these through errors.Is.
var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidState            = errors.New("invalid state")
	ErrQuotaExceeded           = errors.New("quota exceeded")
	ErrConflict                = errors.New("conflict")
	ErrValidation              = errors.New("validation error")
	ErrCodeGenerationExhausted = errors.New("voucher code generation exhausted")
	ErrPersistence             = errors.New("persistence error")
)

// NotFoundError names the missing entity
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string { return e.Entity + " not found" }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound returns a NotFoundError for entity
func NotFound(entity string) error { return &NotFoundError{Entity: entity} }

// InvalidStateError is returned when an operation is not allowed from the
// entity's current status
type InvalidStateError struct {
	Entity   string   `json:"entity"`
	Current  string   `json:"current"`
	Required []string `json:"required"`
	Reason   string   `json:"reason,omitempty"`
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("%s is %s, required %s", e.Entity, e.Current, strings.Join(e.Required, " or "))
	if e.Reason != "" {
		msg = e.Reason + ": " + msg
	}
	return msg
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// InvalidState builds an InvalidStateError
func InvalidState(entity, current string, required ...string) error {
	return &InvalidStateError{Entity: entity, Current: current, Required: required}
}

// QuotaExceededError carries the numbers an operator needs to self-diagnose
type QuotaExceededError struct {
	Current int `json:"current"`
	Quota   int `json:"quota"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly voucher quota reached (%d of %d)", e.Current, e.Quota)
}

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// ConflictError reports a uniqueness violation
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Conflict builds a ConflictError
func Conflict(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ValidationError reports a missing or malformed field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError wraps an infrastructure failure. It is not retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err unless it is nil or already classified
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsBusiness(err) || errors.Is(err, ErrPersistence) || errors.Is(err, ErrCodeGenerationExhausted) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsBusiness reports whether err is an expected business-rule outcome rather
// than an incident.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation)
}
