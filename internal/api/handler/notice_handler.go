package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memberhub/memberdash/internal/core/domain"
)

// NoticeSource hands out pending notices exactly once.
type NoticeSource interface {
	Drain() []domain.Notice
}

type NoticeHandler struct {
	notices NoticeSource
}

func NewNoticeHandler(notices NoticeSource) *NoticeHandler {
	return &NoticeHandler{notices: notices}
}

type noticesResponse struct {
	Notices []domain.Notice `json:"notices"`
}

// List drains the pending notices.
//
// @Summary      Pending notices
// @Tags         notices
// @Produce      json
// @Success      200   {object}  noticesResponse
// @Router       /v1/notices [get]
func (h *NoticeHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, noticesResponse{Notices: h.notices.Drain()})
}
