// internal/api/error_codes.go
package api

import (
	"errors"
	"net/http"

	apperrors "github.com/ch2church/worship-storyboard/internal/errors"
)

// API error codes
const (
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorForbidden     = "FORBIDDEN"
	ErrorUnauthorized  = "UNAUTHORIZED"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	ErrorFileTooLarge  = "FILE_TOO_LARGE"
	ErrorUploadMissing = "UPLOAD_MISSING"
)

// statusFor maps an AppError type to its HTTP status and error code.
// A rejected remote write is reported as 502; the store's own status
// travels in the body.
func statusFor(err error) (int, string) {
	var appError *apperrors.AppError
	if !errors.As(err, &appError) {
		return http.StatusInternalServerError, ErrorInternalError
	}

	switch appError.Type {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest, appError.Code
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound, appError.Code
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized, appError.Code
	case apperrors.ErrorTypeForbidden:
		return http.StatusForbidden, appError.Code
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict, appError.Code
	case apperrors.ErrorTypeRemoteWrite:
		return http.StatusBadGateway, appError.Code
	case apperrors.ErrorTypeRenderUnavailable:
		return http.StatusServiceUnavailable, appError.Code
	default:
		return http.StatusInternalServerError, appError.Code
	}
}
