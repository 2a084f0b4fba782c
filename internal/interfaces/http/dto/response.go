package dto

import "github.com/costgov/backend/internal/domain/shared"

// Response is the envelope of every API response
type Response struct {
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Error   *ErrorInfo       `json:"error,omitempty"`
	Meta    *shared.PageMeta `json:"meta,omitempty"`
}

// ErrorInfo describes a failed request
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`

	Details []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail names one rejected request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewSuccessResponse wraps data in a success envelope
func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

// NewPaginatedResponse wraps a page of items with its pagination meta
func NewPaginatedResponse[T any](page shared.Paginated[T]) Response {
	meta := page.Meta
	return Response{Success: true, Data: page.Items, Meta: &meta}
}

// NewErrorResponse builds an error envelope
func NewErrorResponse(code, message, requestID string) Response {
	return Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message, RequestID: requestID},
	}
}

// FromDomainError builds an error envelope from a domain error
func FromDomainError(err *shared.DomainError, requestID string) Response {
	resp := NewErrorResponse(err.Code, err.Message, requestID)
	resp.Error.Retryable = err.Retryable
	return resp
}
