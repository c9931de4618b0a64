package httpapi

import (
	"context"
	"errors"
	"net/http"

	"HypothesisValidator/internal/domain"
)

var errUploadTooLarge = errors.New("upload exceeds maximum size")

// MapHTTPStatus maps request-level errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrArticleUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrValidationFailed), errors.Is(err, domain.ErrDiscoveryFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
