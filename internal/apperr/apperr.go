// Package apperr implements the §7 error taxonomy as a single error type the write pipeline,
// child-write executor, webhook dispatcher, and workflow engine all return through. Handlers
// in internal/httpapi map *Error to an HTTP response; nothing else in the core should know
// about HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"rocketcore/pkg/model"
)

// Code is one of the §7 error kinds.
type Code string

const (
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeUnknownEntity    Code = "UNKNOWN_ENTITY"
	CodeUnknownField     Code = "UNKNOWN_FIELD"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeInvalidPayload   Code = "INVALID_PAYLOAD"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeWebhookFailed    Code = "WEBHOOK_FAILED"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// Error is the uniform error shape propagated out of the core.
type Error struct {
	Code    Code
	Message string
	Details []model.ValidationIssue
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

// Unwrap allows errors.Is/errors.As to see through to the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps the error's code to the §6 HTTP status it corresponds to.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case CodeUnknownEntity, CodeNotFound:
		return http.StatusNotFound
	case CodeUnknownField, CodeInvalidPayload:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeInvalidState:
		return http.StatusUnprocessableEntity
	case CodeWebhookFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New builds an *Error with no details.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error that preserves cause for errors.Is/As and logging.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Validation builds a CodeValidationFailed error carrying details, per §7.
func Validation(details []model.ValidationIssue) *Error {
	return &Error{Code: CodeValidationFailed, Message: "validation failed", Details: details}
}

// As reports whether err is (or wraps) an *Error, returning the unwrapped value.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
