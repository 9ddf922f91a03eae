package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType is the category of a user-facing failure
type ErrorType string

const (
	// ErrorTypeBadRequest is malformed or missing input
	ErrorTypeBadRequest ErrorType = "bad_request"
	// ErrorTypeUnauthorized is a missing or invalid identity
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	// ErrorTypeForbidden is an authenticated caller acting on something it does not own
	ErrorTypeForbidden ErrorType = "forbidden"
	// ErrorTypeNotFound is a referenced user or request that does not exist
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConflict is a duplicate or stale-state write
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeTooManyRequests is a throttled caller
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	// ErrorTypeInternal is everything else
	ErrorTypeInternal ErrorType = "internal"
)

// AppError carries a category, a client-safe message and an optional cause
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError of the same type, so errors.Is(err, NotFound(""))
// style checks work against the category only.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.Message == "" || t.Message == e.Message)
}

func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{Type: errType, Message: message, Err: err}
}

func BadRequest(message string) *AppError {
	return New(ErrorTypeBadRequest, message, nil)
}

func Unauthorized(message string) *AppError {
	return New(ErrorTypeUnauthorized, message, nil)
}

func Forbidden(message string) *AppError {
	return New(ErrorTypeForbidden, message, nil)
}

func NotFound(message string) *AppError {
	return New(ErrorTypeNotFound, message, nil)
}

func Conflict(message string) *AppError {
	return New(ErrorTypeConflict, message, nil)
}

func TooManyRequests(message string) *AppError {
	return New(ErrorTypeTooManyRequests, message, nil)
}

// Internal wraps an infrastructure failure. The message is the only part
// that may reach a client.
func Internal(message string, err error) *AppError {
	return New(ErrorTypeInternal, message, err)
}

// TypeOf returns the category of err, ErrorTypeInternal for anything that
// is not an *AppError.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// HTTPStatus maps err to the status code the API answers with
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeBadRequest:
		return http.StatusBadRequest
	case ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is what a client may see for err
func PublicMessage(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr.Type != ErrorTypeInternal {
		return appErr.Message
	}
	return "internal server error"
}
