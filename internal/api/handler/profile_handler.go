package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/memberhub/memberdash/internal/core/ports"
)

type ProfileHandler struct {
	profiles ports.ProfileService
	log      zerolog.Logger
	now      func() time.Time
}

func NewProfileHandler(profiles ports.ProfileService, log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, log: log, now: time.Now}
}

type profileResponse struct {
	Data      *profileView `json:"data"`
	IsLoading bool         `json:"isLoading"`
	IsError   bool         `json:"isError"`
	Error     string       `json:"error,omitempty"`
}

// Get returns the member profile of the signed-in user. The envelope is the
// same for every outcome; the status code reflects the error kind.
//
// @Summary      Member profile
// @Tags         profile
// @Produce      json
// @Success      200   {object}  profileResponse
// @Failure      401   {object}  profileResponse
// @Failure      404   {object}  profileResponse
// @Failure      422   {object}  profileResponse
// @Failure      503   {object}  profileResponse
// @Router       /v1/profile [get]
func (h *ProfileHandler) Get(c echo.Context) error {
	subject, err := ctxSubject(c)
	if err != nil {
		return err
	}

	state := h.profiles.State(c.Request().Context())
	switch {
	case state.IsLoading:
		return c.JSON(http.StatusOK, profileResponse{IsLoading: true})
	case state.IsError:
		code, msg, ok := ErrorStatus(state.Err)
		if !ok {
			h.log.Error().Err(state.Err).Str("user_id", subject).Msg("profile load failed")
			code, msg = http.StatusInternalServerError, "failed to load profile"
		}
		return c.JSON(code, profileResponse{IsError: true, Error: msg})
	}
	return c.JSON(http.StatusOK, profileResponse{Data: toProfileView(state.Data, h.now())})
}
