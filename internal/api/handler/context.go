package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memberhub/memberdash/internal/api/middleware"
)

// ctxSubject extracts the subject injected by the Session middleware and fails
// fast when the middleware did not run.
func ctxSubject(c echo.Context) (string, error) {
	subject, _ := c.Get(middleware.CtxSubject).(string)
	if subject == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return subject, nil
}
