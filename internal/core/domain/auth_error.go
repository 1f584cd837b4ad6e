package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthError is a structured failure reported by the identity provider.
type AuthError struct {
	Status  int    // HTTP status, 0 when the failure happened client side
	Code    string // documented error code, e.g. "session_not_found"
	Message string
	Body    string // raw response body, may embed a JSON code
}

func (e *AuthError) Error() string {
	switch {
	case e.Code != "" && e.Status != 0:
		return fmt.Sprintf("auth: %s (%d %s)", e.Message, e.Status, e.Code)
	case e.Status != 0:
		return fmt.Sprintf("auth: %s (%d)", e.Message, e.Status)
	default:
		return "auth: " + e.Message
	}
}

// EmbeddedCode returns Code, falling back to the "code" or "error_code" field of a JSON Body.
func (e *AuthError) EmbeddedCode() string {
	if e.Code != "" {
		return e.Code
	}
	if e.Body == "" {
		return ""
	}
	var body struct {
		Code      json.RawMessage `json:"code"`
		ErrorCode string          `json:"error_code"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err != nil {
		return ""
	}
	if body.ErrorCode != "" {
		return body.ErrorCode
	}
	// GoTrue uses "code" for both the numeric status and the string code.
	var code string
	if json.Unmarshal(body.Code, &code) == nil {
		return code
	}
	return ""
}

// AuthErrorClass is the outcome of ClassifyAuthError.
type AuthErrorClass int

const (
	AuthErrorUnclassified AuthErrorClass = iota
	AuthErrorSessionInvalid
)

func (c AuthErrorClass) String() string {
	if c == AuthErrorSessionInvalid {
		return "session_invalid"
	}
	return "unclassified"
}

// sessionInvalidCodes are the provider's documented codes for a dead session.
var sessionInvalidCodes = map[string]struct{}{
	"session_not_found":          {},
	"session_expired":            {},
	"refresh_token_not_found":    {},
	"refresh_token_already_used": {},
	"bad_jwt":                    {},
}

// Free-text markers, consulted only when no structured signal is present.
const (
	markerTokenExpired        = "JWT expired"
	markerInvalidRefreshToken = "Invalid Refresh Token"
)

// ClassifyAuthError decides whether err means the session is gone for good.
// Structured signals (sentinels, codes, status) are checked before the message.
func ClassifyAuthError(err error) AuthErrorClass {
	if err == nil {
		return AuthErrorUnclassified
	}
	if errors.Is(err, ErrSessionInvalid) || errors.Is(err, jwt.ErrTokenExpired) {
		return AuthErrorSessionInvalid
	}

	var ae *AuthError
	if errors.As(err, &ae) {
		if _, ok := sessionInvalidCodes[ae.EmbeddedCode()]; ok {
			return AuthErrorSessionInvalid
		}
		if ae.Status == http.StatusForbidden {
			return AuthErrorSessionInvalid
		}
	}

	msg := err.Error()
	if strings.Contains(msg, markerTokenExpired) || strings.Contains(msg, markerInvalidRefreshToken) {
		return AuthErrorSessionInvalid
	}
	return AuthErrorUnclassified
}
