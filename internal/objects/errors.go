package objects

import (
	"errors"
	"net/http"

	"github.com/bimbel/storagegw/internal/response"
	"github.com/bimbel/storagegw/internal/storage"
)

var (
	// ErrValidation wraps malformed or missing input.
	ErrValidation = errors.New("invalid request")

	// ErrInvalidKey is returned for keys outside Namespace.
	ErrInvalidKey = errors.New("invalid key")
)

// errorResponse maps an operation error to status, code and client message.
func errorResponse(err error) (int, string, string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, response.CodeValidation, err.Error()
	case errors.Is(err, ErrInvalidKey):
		return http.StatusBadRequest, response.CodeInvalidKey, "invalid key"
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, response.CodeTooLarge, "file too large"
	case errors.Is(err, storage.ErrNotConfigured):
		return http.StatusInternalServerError, response.CodeConfiguration, "object storage is not configured"
	}

	var storeErr *storage.Error
	if !errors.As(err, &storeErr) {
		return http.StatusInternalServerError, response.CodeInternal, "internal server error"
	}
	switch storeErr.Kind {
	case storage.KindNotFound:
		return http.StatusNotFound, response.CodeNotFound, "object not found"
	case storage.KindAccessDenied:
		return http.StatusForbidden, response.CodeForbidden, "access to object denied"
	case storage.KindInvalidRange:
		return http.StatusRequestedRangeNotSatisfiable, response.CodeRange, "requested range not satisfiable"
	default:
		return http.StatusInternalServerError, response.CodeUpstream, storeErr.Error()
	}
}
