package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	version string
}

func New(version string) *Handler {
	return &Handler{version: version}
}

// Health returns application health status
// @Summary Health check
// @Description Returns the health status of the application
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}
