// Package shared contains the error taxonomy and domain events used across the
// journey domain packages. It has no dependencies outside the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds. Check them with errors.Is.
var (
	// ErrValidation: malformed or missing input (birthdate, option id, query params).
	ErrValidation = errors.New("validation error")

	// ErrNotFound: unknown child, question, module, trail or badge.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict: a concurrent writer won a uniqueness race (badge grants).
	ErrConflict = errors.New("conflict")

	// ErrExternalService: the child profile service or the storage layer failed.
	ErrExternalService = errors.New("external service error")

	// ErrForbidden: the caller may not read or write this child's journey.
	ErrForbidden = errors.New("forbidden")

	// Finer-grained external kinds; both also match ErrExternalService.
	ErrServiceUnavailable = fmt.Errorf("service unavailable: %w", ErrExternalService)
	ErrTimeout            = fmt.Errorf("operation timeout: %w", ErrExternalService)
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "catalog", "answer", "child"
	Op      string // operation that failed, e.g. "Save", "ComputeAge"
	Kind    error  // base kind for errors.Is
	Message string // human-readable message, safe to show to API clients
	Err     error  // underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error, or the kind when there is none.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches both the kind and the wrapped error.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Validation builds an ErrValidation domain error.
func Validation(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound builds an ErrNotFound domain error.
func NotFound(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflict builds an ErrConflict domain error.
func Conflict(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrConflict, fmt.Sprintf(format, args...))
}

// External wraps an infrastructure failure as ErrExternalService.
func External(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrExternalService, "external service failed", err)
}

// Predefined errors that do not need per-call context.
var (
	ErrBirthdateMissing = NewDomainError("child", "ComputeAge", ErrValidation, "birthdate is required")
	ErrBirthdateFuture  = NewDomainError("child", "ComputeAge", ErrValidation, "birthdate is in the future")
	ErrChildNotFound    = NewDomainError("child", "Find", ErrNotFound, "child not found")
	ErrAccessDenied     = NewDomainError("child", "Authorize", ErrForbidden, "access to this child is not allowed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict checks if the error is a uniqueness conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsForbidden checks if the error is an authorization failure.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsExternalService checks if the error came from a collaborator or the store.
func IsExternalService(err error) bool { return errors.Is(err, ErrExternalService) }

// PublicMessage returns the message that may be shown to API clients.
// Anything that is not a DomainError collapses to a generic message.
func PublicMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) && !errors.Is(de.Kind, ErrExternalService) {
		return de.Message
	}
	return "couldn't load or save right now, try again"
}
