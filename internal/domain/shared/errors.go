package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so wrapped copies with a custom message
// still satisfy errors.Is against the sentinels below.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a domain error the caller may safely retry
func NewRetryableError(code, message string) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// Error codes
const (
	CodeNotFound              = "NOT_FOUND"
	CodeInvalidInput          = "INVALID_INPUT"
	CodeValidation            = "VALIDATION_ERROR"
	CodeForbidden             = "FORBIDDEN"
	CodeInvalidState          = "INVALID_STATE"
	CodeIdempotencyConflict   = "IDEMPOTENCY_KEY_CONFLICT"
	CodeIdempotencyInProgress = "IDEMPOTENCY_REQUEST_IN_PROGRESS"
	CodeStaleState            = "STALE_STATE"
	CodeSameApprover          = "SAME_APPROVER"
)

// Common domain errors
var (
	ErrNotFound              = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput          = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrUnauthorized          = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden             = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
	ErrInvalidState          = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrIdempotencyConflict   = NewDomainError(CodeIdempotencyConflict, "Idempotency key was already used with a different request")
	ErrIdempotencyInProgress = NewRetryableError(CodeIdempotencyInProgress, "A request with this idempotency key is still being processed")
	ErrStaleState            = NewRetryableError(CodeStaleState, "Resource was modified concurrently, reload and retry")
	ErrSameApprover          = NewDomainError(CodeSameApprover, "Second approval must come from a different user")
)

// NewValidationError creates a validation error with a field specific message
func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message)
}

// IsRetryable reports whether err carries a retryable domain error
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}
