package dto

import (
	"net/http"

	"github.com/costgov/backend/internal/domain/shared"
)

// Transport-level error codes. Domain codes come from the shared package.
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeTokenExpired    = "TOKEN_EXPIRED"
	ErrCodeInvalidToken    = "INVALID_TOKEN"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	shared.CodeInvalidInput:          http.StatusBadRequest,
	shared.CodeValidation:            http.StatusBadRequest,
	ErrCodeBadRequest:                http.StatusBadRequest,
	shared.CodeNotFound:              http.StatusNotFound,
	shared.CodeForbidden:             http.StatusForbidden,
	ErrCodeUnauthorized:              http.StatusUnauthorized,
	ErrCodeTokenExpired:              http.StatusUnauthorized,
	ErrCodeInvalidToken:              http.StatusUnauthorized,
	shared.CodeIdempotencyConflict:   http.StatusConflict,
	shared.CodeIdempotencyInProgress: http.StatusConflict,
	shared.CodeStaleState:            http.StatusConflict,
	shared.CodeSameApprover:          http.StatusUnprocessableEntity,
	shared.CodeInvalidState:          http.StatusUnprocessableEntity,
	ErrCodeRequestTooLarge:           http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:               http.StatusTooManyRequests,
	ErrCodeInternal:                  http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status for an error code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
