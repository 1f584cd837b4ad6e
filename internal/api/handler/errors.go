package handler

import (
	"errors"
	"net/http"

	"github.com/memberhub/memberdash/internal/core/domain"
)

// ErrorStatus maps a known domain error to its HTTP status and public message.
// ok is false for errors that must not be exposed.
func ErrorStatus(err error) (code int, msg string, ok bool) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials", true
	case errors.Is(err, domain.ErrNoSession):
		return http.StatusUnauthorized, "no active session", true
	case errors.Is(err, domain.ErrSessionInvalid):
		return http.StatusUnauthorized, "session expired", true
	case errors.Is(err, domain.ErrMemberNumberMissing):
		return http.StatusUnprocessableEntity, "member number not found", true
	case errors.Is(err, domain.ErrMemberNotFound):
		return http.StatusNotFound, "member not found", true
	case errors.Is(err, domain.ErrQueryFailed):
		return http.StatusServiceUnavailable, "member lookup failed", true
	}
	return 0, "", false
}
