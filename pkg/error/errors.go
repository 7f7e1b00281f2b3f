package error

import (
	"errors"
	"net/http"

	"github.com/fixora/auditreport/internal/domain"
	"github.com/fixora/auditreport/internal/infra/auth"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "Internal server error", Status: http.StatusInternalServerError}
	ErrTooManyRequest = &AppError{Code: "TOO_MANY_REQUESTS", Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests}
)

func NewBadRequest(message string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: message, Status: http.StatusBadRequest}
}

func NewUnauthorized(message string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: message, Status: http.StatusUnauthorized}
}

func NewNotFound(message string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: message, Status: http.StatusNotFound}
}

func NewInternalServer(message string) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError}
}

func NewUnprocessable(code, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: http.StatusUnprocessableEntity}
}

// MapError translates pipeline errors into HTTP errors
func MapError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var malformed *domain.MalformedEventError
	if errors.As(err, &malformed) {
		return NewUnprocessable("MALFORMED_EVENT", malformed.Error())
	}

	var recErr *domain.RecordError
	if errors.As(err, &recErr) {
		return &AppError{Code: "INVALID_RECORD", Message: recErr.Error(), Status: http.StatusBadRequest}
	}

	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return mapUpstream(upstream)
	}

	switch {
	case errors.Is(err, domain.ErrUnknownSchema):
		return &AppError{Code: "UNKNOWN_SCHEMA", Message: "Unknown log schema, expected audit-logs or modification-logs", Status: http.StatusNotFound}
	case errors.Is(err, domain.ErrInvalidSnapshot):
		return &AppError{Code: "INVALID_SNAPSHOT", Message: err.Error(), Status: http.StatusBadRequest}
	case errors.Is(err, domain.ErrInvalidQuery):
		return NewBadRequest(err.Error())
	case errors.Is(err, auth.ErrTokenExpired):
		return NewUnauthorized("Token expired")
	case errors.Is(err, auth.ErrInvalidToken):
		return NewUnauthorized("Invalid or expired token")
	default:
		return NewInternalServer("An unexpected error occurred")
	}
}

// mapUpstream keeps auth and not-found answers from the backend; anything else is a bad gateway.
func mapUpstream(err *domain.UpstreamError) *AppError {
	message := err.Message
	if message == "" {
		message = http.StatusText(err.StatusCode)
	}

	switch err.StatusCode {
	case http.StatusUnauthorized:
		return NewUnauthorized(message)
	case http.StatusForbidden:
		return &AppError{Code: "FORBIDDEN", Message: message, Status: http.StatusForbidden}
	case http.StatusNotFound:
		return NewNotFound(message)
	case http.StatusTooManyRequests:
		return ErrTooManyRequest
	default:
		return &AppError{Code: "UPSTREAM_ERROR", Message: err.Error(), Status: http.StatusBadGateway}
	}
}
