package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// MarkAttended handles POST /v1/reservations/:id/attend.  Only the
// session's trainer or an admin succeeds; the seat stays held.
func (h *BookingHandler) MarkAttended(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	r, err := h.Svc.MarkAttended(ctx, id, a)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, r)
}

// SessionRoster handles GET /v1/trainer/sessions/:id/reservations.
func (h *BookingHandler) SessionRoster(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	roster, err := h.Svc.SessionRoster(ctx, sessionID, a)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, roster)
}
