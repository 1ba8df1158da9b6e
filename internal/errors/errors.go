package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an AppError.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeError        ErrorType = "processing_error"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"

	ErrorTypeRenderUnavailable ErrorType = "render_dependency_unavailable"
	ErrorTypeItemRender        ErrorType = "item_render_failure"
	ErrorTypeRemoteWrite       ErrorType = "remote_write_failure"
)

// AppError is the error shape every package in the service returns.
// Field names the offending record field for validation errors; Status carries
// the HTTP-equivalent status reported by a remote store.
type AppError struct {
	Type    ErrorType
	Message string
	Field   string
	Status  int
	Err     error
	Code    string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field %s)", msg, e.Field)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the wrapped cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError builds an AppError of the given type.
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError reports malformed data for the named field.
func NewValidationError(field, message string, originalError error) *AppError {
	e := NewAppError(ErrorTypeValidation, message, originalError)
	e.Field = field
	return e
}

func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

func NewUnauthorizedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnauthorized, message, originalError)
}

func NewForbiddenError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeForbidden, message, originalError)
}

func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewRenderUnavailableError reports that no document encoder is configured.
func NewRenderUnavailableError(message string) *AppError {
	return NewAppError(ErrorTypeRenderUnavailable, message, nil)
}

// NewItemRenderError describes one file that could not be embedded.
// The renderer logs it and substitutes a placeholder; it never reaches callers.
func NewItemRenderError(fileName string, originalError error) *AppError {
	e := NewAppError(ErrorTypeItemRender, "cannot embed "+fileName, originalError)
	e.Field = fileName
	return e
}

// NewRemoteWriteError wraps a rejected blob store write with its status.
func NewRemoteWriteError(path string, status int, originalError error) *AppError {
	e := NewAppError(ErrorTypeRemoteWrite, "write "+path+" rejected", originalError)
	e.Status = status
	return e
}

func isType(err error, t ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == t
	}
	return false
}

func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFoundError reports whether err means the requested path does not exist.
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

func IsProcessingError(err error) bool { return isType(err, ErrorTypeError) }

func IsUnauthorizedError(err error) bool { return isType(err, ErrorTypeUnauthorized) }

func IsForbiddenError(err error) bool { return isType(err, ErrorTypeForbidden) }

func IsConflictError(err error) bool { return isType(err, ErrorTypeConflict) }

func IsRenderUnavailableError(err error) bool { return isType(err, ErrorTypeRenderUnavailable) }

func IsRemoteWriteError(err error) bool { return isType(err, ErrorTypeRemoteWrite) }

// StatusOf returns the remote status carried by err, or 0.
func StatusOf(err error) int {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Status
	}
	return 0
}

// FieldOf returns the field named by a validation error, or "".
func FieldOf(err error) string {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Field
	}
	return ""
}

func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	case ErrorTypeForbidden:
		return "FORBIDDEN"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeRenderUnavailable:
		return "RENDER_DEPENDENCY_UNAVAILABLE"
	case ErrorTypeItemRender:
		return "ITEM_RENDER_FAILURE"
	case ErrorTypeRemoteWrite:
		return "REMOTE_WRITE_FAILURE"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError prefixes message onto err, keeping the AppError type when present.
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Field:   appError.Field,
			Status:  appError.Status,
			Err:     appError.Err,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
