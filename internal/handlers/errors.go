package handlers

import (
	"context"
	"errors"
	"net/http"

	"towtrace-backend/internal/hos"
	"towtrace-backend/pkg/utils"
)

// StatusForError maps service errors to HTTP status codes. 503 tells the
// device gateway the same record may be retried.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, hos.ErrInvalidTelemetry):
		return http.StatusBadRequest
	case errors.Is(err, hos.ErrDeviceNotFound), errors.Is(err, hos.ErrDriverNotFound):
		return http.StatusNotFound
	case errors.Is(err, hos.ErrConcurrencyConflict), errors.Is(err, hos.ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondServiceError sends the status StatusForError picks. Server-side
// failures get a generic message so storage details are not leaked.
func RespondServiceError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	message := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		message = "Service temporarily unavailable, retry later"
	case http.StatusInternalServerError:
		message = "Internal server error"
	}
	utils.RespondError(w, status, message)
}
