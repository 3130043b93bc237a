package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteJSON writes data as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

// Common error codes
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeRateLimit        = "RATE_LIMIT_EXCEEDED"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeDependency       = "DEPENDENCY_FAILED"
	CodeDatesUnavailable = "DATES_UNAVAILABLE"
	CodeHoldExpired      = "HOLD_EXPIRED"
	CodeJobRunning       = "JOB_ALREADY_RUNNING"
)

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}

// Audience selects how much of a dependency failure is shown.
type Audience int

const (
	// Guest responses hide infrastructure details.
	Guest Audience = iota
	// Admin responses carry the underlying message.
	Admin
)

// FromError translates a service error into a response.
func FromError(w http.ResponseWriter, r *http.Request, err error, aud Audience) {
	var de *domain.Error
	if !errors.As(err, &de) {
		logger.ErrorContext(r.Context(), "Unhandled error", "error", err, "path", r.URL.Path)
		InternalError(w, "Something went wrong. Please try again.")
		return
	}

	switch de.Kind {
	case domain.KindValidation:
		BadRequest(w, de.Message)
	case domain.KindNotFound:
		NotFound(w, de.Message)
	case domain.KindConflict:
		code := CodeConflict
		switch {
		case errors.Is(err, domain.ErrDatesUnavailable):
			code = CodeDatesUnavailable
		case errors.Is(err, domain.ErrHoldExpired):
			code = CodeHoldExpired
		case errors.Is(err, domain.ErrSyncAlreadyActive):
			code = CodeJobRunning
		}
		WriteError(w, http.StatusConflict, de.Message, code)
	default:
		logger.ErrorContext(r.Context(), "Dependency failure", "error", err, "path", r.URL.Path)
		if aud == Admin {
			details := ""
			if de.Err != nil {
				details = de.Err.Error()
			}
			WriteErrorWithDetails(w, http.StatusBadGateway, de.Message, CodeDependency, details)
			return
		}
		WriteError(w, http.StatusBadGateway, "We could not complete your request. Please try again shortly.", CodeDependency)
	}
}
