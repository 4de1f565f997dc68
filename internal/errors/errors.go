// Package errors defines the service error taxonomy rendered by the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeInvalidToken      ErrorCode = "invalid_token"
	CodeForbidden         ErrorCode = "forbidden"
	CodeNotFound          ErrorCode = "not_found"
	CodeConflict          ErrorCode = "conflict"
	CodeBadRequest        ErrorCode = "bad_request"
	CodeValidation        ErrorCode = "validation_failed"
	CodeUpstream          ErrorCode = "upstream_failure"
	CodeInternal          ErrorCode = "internal_error"
	CodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
)

// ServiceError is an error that knows how it should be rendered over HTTP.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of e with key=value added to its details.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// Unauthorized is an AuthFailure for a missing or malformed credential.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Unauthorized"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// InvalidToken is an AuthFailure for a token that fails verification.
func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "Invalid token", err)
}

// Forbidden rejects an authenticated principal of the wrong type.
func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// NotFound reports a referenced row that must exist but does not.
func NotFound(message string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

// Conflict reports a duplicate registration or enrollment. Rendered as 400.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusBadRequest, message, nil)
}

// BadRequest reports a business failure such as an insert that returned no row.
func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, nil)
}

// Validation reports a structurally invalid request body.
func Validation(message string, err error) *ServiceError {
	return newError(CodeValidation, http.StatusUnprocessableEntity, message, err)
}

// Upstream wraps an unexpected data store failure, surfacing the underlying message.
func Upstream(err error) *ServiceError {
	msg := "Error"
	if err != nil {
		msg = "Error: " + err.Error()
	}
	return newError(CodeUpstream, http.StatusInternalServerError, msg, err)
}

// Internal reports a failure inside this service.
func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// RateLimitExceeded reports that the caller exceeded limit requests per window.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimitExceeded, http.StatusTooManyRequests, "Rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// GetServiceError extracts a *ServiceError from err's chain, or returns nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
