// Package apperr maps the domain-rule error taxonomy of §7 to HTTP
// status codes for the boundary. internal/httpapi calls it for every
// error response: request routing and validation at the edge are
// out of scope, but *something* has to turn a domain.Error into a
// status code, and this is that one small seam.
package apperr

import (
	"errors"
	"net/http"

	"github.com/timour/order-saga/internal/domain"
	"github.com/timour/order-saga/internal/orderstore"
)

// StatusFor maps err to the HTTP status the boundary should return.
// Unrecognized errors map to 500.
func StatusFor(err error) int {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		switch domainErr.Kind {
		case domain.KindValidation:
			return http.StatusBadRequest
		case domain.KindIllegalTransition, domain.KindCancellationWindowExceeded:
			return http.StatusConflict
		case domain.KindOptimisticConflict:
			return http.StatusConflict
		}
	}
	if errors.Is(err, orderstore.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
