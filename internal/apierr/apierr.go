// Package apierr implements the tagged error variant described in spec
// design notes: a single error type carrying a stable code, an HTTP status,
// and optional structured details, replacing a zoo of exception types with
// one shape the API layer always knows how to render.
package apierr

import "fmt"

// Code is a stable, machine-readable error identifier (spec §7).
type Code string

const (
	CodeInvalidRequestFormat Code = "invalid_request_format"
	CodeMissingRequiredField Code = "missing_required_field"
	CodeInvalidVerseRef      Code = "invalid_verse_reference"
	CodeResourceNotFound     Code = "resource_not_found"
	CodeRateLimitExceeded    Code = "rate_limit_exceeded"
	CodeContentBlocked       Code = "content_blocked"
	CodeModelInferenceFailed Code = "model_inference_failed"
	CodeAIServiceTimeout     Code = "ai_service_timeout"
	CodeStorageReadFailed    Code = "storage_read_failed"
	CodeStorageWriteFailed   Code = "storage_write_failed"
	CodeDatabaseQueryFailed  Code = "database_query_failed"
	CodeInternalServerError Code = "internal_server_error"
	CodeCancelled            Code = "cancelled"
	CodeUnauthorized         Code = "unauthorized"
	CodeForbidden            Code = "forbidden"
)

// httpStatus maps each code to its HTTP status per spec §7.
var httpStatus = map[Code]int{
	CodeInvalidRequestFormat: 400,
	CodeMissingRequiredField: 400,
	CodeInvalidVerseRef:      400,
	CodeResourceNotFound:     404,
	CodeRateLimitExceeded:    429,
	CodeContentBlocked:       422,
	CodeModelInferenceFailed: 502,
	CodeAIServiceTimeout:     504,
	CodeStorageReadFailed:    500,
	CodeStorageWriteFailed:   500,
	CodeDatabaseQueryFailed:  500,
	CodeInternalServerError:  500,
	CodeCancelled:            499,
	CodeUnauthorized:         401,
	CodeForbidden:            403,
}

// Error is the single tagged error variant used throughout the service.
type Error struct {
	Code       Code
	Message    string
	Details    any
	RetryAfter *int
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return 500
}

// New builds an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error that preserves an underlying cause for logging while
// presenting a stable code and message to the client.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetails attaches structured details (e.g. validation field errors).
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// WithRetryAfter attaches a Retry-After seconds value (floored to 1 per
// spec design note ii — resetAt-now can be zero at the instant of reset).
func (e *Error) WithRetryAfter(seconds int) *Error {
	if seconds < 1 {
		seconds = 1
	}
	e.RetryAfter = &seconds
	return e
}

// NotFound is a convenience constructor for the common not-found case.
func NotFound(resource string) *Error {
	return New(CodeResourceNotFound, resource+" not found")
}

// Internal is a convenience constructor that wraps an unexpected error.
func Internal(message string, cause error) *Error {
	return Wrap(CodeInternalServerError, message, cause)
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	return ae, ok
}
