package middleware

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/memberhub/memberdash/internal/core/ports"
)

// DefaultRole is assumed when neither the token nor the user carries one.
const DefaultRole = "authenticated"

// Context keys set by Session.
const (
	CtxSubject = "subject"
	CtxRole    = "role"
	CtxEmail   = "email"
)

type accessClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Session requires an authenticated session and injects its claims into context.
// With a non-empty jwtSecret the access token must be a valid HS256 token signed
// with it; otherwise the token is decoded without signature verification.
func Session(sessions ports.SessionReader, jwtSecret string) echo.MiddlewareFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			snap := sessions.Snapshot()
			if snap.Session == nil || snap.Session.User.ID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}

			claims := &accessClaims{}
			var err error
			if jwtSecret != "" {
				_, err = parser.ParseWithClaims(snap.Session.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
					return []byte(jwtSecret), nil
				})
			} else {
				_, _, err = parser.ParseUnverified(snap.Session.AccessToken, claims)
			}
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				return echo.NewHTTPError(http.StatusUnauthorized, "session expired")
			case err != nil:
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			subject := claims.Subject
			if subject == "" {
				subject = snap.Session.User.ID
			}
			if subject != snap.Session.User.ID {
				return echo.NewHTTPError(http.StatusUnauthorized, "token subject mismatch")
			}

			role := claims.Role
			if role == "" {
				role = snap.Session.User.Role
			}
			if role == "" {
				role = DefaultRole
			}

			c.Set(CtxSubject, subject)
			c.Set(CtxRole, role)
			c.Set(CtxEmail, claims.Email)

			return next(c)
		}
	}
}
