package api

import (
	"errors"
	"net/http"

	"github.com/okian/tutormarket/internal/adapters/repository"
	service "github.com/okian/tutormarket/internal/app"
	"github.com/okian/tutormarket/internal/domain/pricing"
	"github.com/okian/tutormarket/internal/domain/profile"
	"github.com/okian/tutormarket/internal/domain/types"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrMissingPath = errors.New("missing path parameter")
)

// writeError maps err onto a status and the common error body. Unexpected
// errors are logged by the request logger and not echoed to the client.
func writeError(w http.ResponseWriter, err error) {
	var verr *RequestValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, verr.ToErrorResponse())
	case errors.Is(err, profile.ErrNotFound), errors.Is(err, repository.ErrSuggestionNotFound):
		writeJSON(w, http.StatusNotFound, types.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, pricing.ErrInvalidWindow), errors.Is(err, ErrBadRequest), errors.Is(err, ErrMissingPath):
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
	case errors.Is(err, service.ErrBackpressure):
		writeJSON(w, http.StatusTooManyRequests, types.ErrorResponse{Code: "BACKPRESSURE", Message: err.Error()})
	case errors.Is(err, service.ErrNotStarted):
		writeJSON(w, http.StatusServiceUnavailable, types.ErrorResponse{Code: "UNAVAILABLE", Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
	}
}
