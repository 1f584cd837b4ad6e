package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memberhub/memberdash/internal/core/domain"
	"github.com/memberhub/memberdash/internal/core/ports"
)

type AuthHandler struct {
	sessions ports.SessionService
}

func NewAuthHandler(sessions ports.SessionService) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=256"`
}

type sessionUser struct {
	ID           string `json:"id"`
	Email        string `json:"email,omitempty"`
	MemberNumber string `json:"member_number,omitempty"`
}

type sessionInfo struct {
	User      sessionUser `json:"user"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

type sessionResponse struct {
	Session *sessionInfo `json:"session"`
	Loading bool         `json:"loading"`
	State   string       `json:"state"`
}

// Login signs in with email and password. The session is published once the
// provider confirms the sign-in; poll GET /v1/session for the outcome.
//
// @Summary      Sign in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      202   {object}  sessionResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /v1/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.sessions.SignIn(c.Request().Context(), req.Email, req.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, toSessionResponse(h.sessions.Snapshot()))
}

// Logout signs the current session out.
//
// @Summary      Sign out
// @Tags         auth
// @Success      204
// @Failure      500   {object}  map[string]string
// @Router       /v1/auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.sessions.SignOut(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to log out"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Session reports the current session state. Tokens are never exposed.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Success      200   {object}  sessionResponse
// @Router       /v1/session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	return c.JSON(http.StatusOK, toSessionResponse(h.sessions.Snapshot()))
}

func toSessionResponse(snap domain.SessionSnapshot) sessionResponse {
	resp := sessionResponse{Loading: snap.Loading, State: string(snap.State)}
	if s := snap.Session; s != nil {
		info := &sessionInfo{User: sessionUser{
			ID:           s.User.ID,
			Email:        s.User.Email,
			MemberNumber: s.User.MemberNumber(),
		}}
		if !s.ExpiresAt.IsZero() {
			exp := s.ExpiresAt.UTC()
			info.ExpiresAt = &exp
		}
		resp.Session = info
	}
	return resp
}
