// Package domainerrors carries coded, transport-agnostic errors from services to
// adapters. Handlers translate codes to protocol statuses; services never import
// net/http.
package domainerrors

import (
	"errors"
	"time"
)

// Code is a stable, machine-readable error identifier surfaced to API clients.
type Code string

const (
	// Verification taxonomy.
	CodeUnknownVerificationType Code = "unknown_verification_type"
	CodeValidation              Code = "validation_error"
	CodeDuplicatePending        Code = "duplicate_pending_request"
	CodeAlreadyVerified         Code = "already_verified"
	CodeRateLimitExceeded       Code = "rate_limit_exceeded"
	CodeNotFound                Code = "not_found"
	CodeForbidden               Code = "forbidden"
	CodeAlreadyReviewed         Code = "already_reviewed"
	CodeStorageFailure          Code = "storage_failure"

	// Infrastructure and boundary codes.
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodePayloadTooLarge    Code = "payload_too_large"
	CodeInternal           Code = "internal_error"
)

// FieldError pins one validation failure to the input field that caused it.
// Document problems use indexed names such as "documents[2]".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the concrete domain error.
type Error struct {
	Code       Code
	Message    string
	Fields     []FieldError
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so errors.Is(err, New(code, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error while keeping it
// reachable through errors.Is / errors.As.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Validation builds a CodeValidation error carrying every field violation.
func Validation(msg string, fields []FieldError) error {
	return &Error{Code: CodeValidation, Message: msg, Fields: fields}
}

// RateLimited builds a CodeRateLimitExceeded error with a retry hint.
func RateLimited(msg string, retryAfter time.Duration) error {
	return &Error{Code: CodeRateLimitExceeded, Message: msg, RetryAfter: retryAfter}
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost domain code, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// FieldsOf returns field violations attached to err, if any.
func FieldsOf(err error) []FieldError {
	var de *Error
	if errors.As(err, &de) {
		return de.Fields
	}
	return nil
}

// RetryAfterOf returns the retry hint attached to err, if any.
func RetryAfterOf(err error) time.Duration {
	var de *Error
	if errors.As(err, &de) {
		return de.RetryAfter
	}
	return 0
}
