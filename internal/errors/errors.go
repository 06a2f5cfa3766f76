// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeNotFound       ErrorType = "NOT_FOUND"
	ErrorTypeConflict       ErrorType = "CONFLICT"
	ErrorTypeFastForward    ErrorType = "FAST_FORWARD"
	ErrorTypeInvalidHistory ErrorType = "INVALID_HISTORY"
	ErrorTypeValidation     ErrorType = "VALIDATION"
	ErrorTypeInternal       ErrorType = "INTERNAL"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details any       `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func NotFound(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf(format, args...),
		Code:    http.StatusNotFound,
	}
}

func Conflict(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeConflict,
		Message: fmt.Sprintf(format, args...),
		Code:    http.StatusConflict,
	}
}

// FastForward signals a stale branch head on an ordinary commit; the
// caller re-resolves against the new head and retries.
func FastForward(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeFastForward,
		Message: fmt.Sprintf(format, args...),
		Code:    http.StatusConflict,
	}
}

func InvalidHistory(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeInvalidHistory,
		Message: fmt.Sprintf(format, args...),
		Code:    http.StatusUnprocessableEntity,
	}
}

func ValidationError(message string, details any) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    http.StatusBadRequest,
		Details: details,
	}
}

func Internal(err error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Message: err.Error(),
		Code:    http.StatusInternalServerError,
	}
}

// IsType reports whether err is an *Error of the given kind.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

func IsNotFound(err error) bool       { return IsType(err, ErrorTypeNotFound) }
func IsConflict(err error) bool       { return IsType(err, ErrorTypeConflict) }
func IsFastForward(err error) bool    { return IsType(err, ErrorTypeFastForward) }
func IsInvalidHistory(err error) bool { return IsType(err, ErrorTypeInvalidHistory) }
