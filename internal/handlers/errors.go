package handlers

import (
	"errors"
	"net/http"

	"github.com/mauv0809/good-morning/internal/ingest"
)

// statusFor maps download errors to HTTP status codes.
func statusFor(err error) int {
	var se *ingest.StatusError
	switch {
	case errors.As(err, &se):
		return http.StatusBadGateway
	case errors.Is(err, ingest.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrNotFound), errors.Is(err, ingest.ErrEmptyResponse):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrSchemaMismatch), errors.Is(err, ingest.ErrTreeDesync):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
