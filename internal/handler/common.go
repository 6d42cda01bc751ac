package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/gym-class-booking/internal/ledger"
	"github.com/iliyamo/gym-class-booking/internal/service"
)

const defaultTimeout = 5 * time.Second

// getUserID extracts the user_id stored by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// actor builds the service caller from the request context.
func actor(c echo.Context) (service.Actor, error) {
	uid, err := getUserID(c)
	if err != nil || uid == 0 {
		return service.Actor{}, errors.New("unauthenticated")
	}
	role, _ := c.Get("role").(string)
	return service.Actor{UserID: uid, Role: role}, nil
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// withTimeout bounds a request's work so a blocked session lock cannot
// hold the caller forever.
func withTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultTimeout
	}
	return context.WithTimeout(c.Request().Context(), d)
}

// outcomeStatus maps a ledger outcome onto an HTTP status.
func outcomeStatus(o ledger.Outcome) int {
	switch o {
	case ledger.Reserved:
		return http.StatusCreated
	case ledger.Waitlisted:
		return http.StatusAccepted
	case ledger.Full, ledger.AlreadyReserved, ledger.AlreadyWaitlisted:
		return http.StatusConflict
	case ledger.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusOK
	}
}

// writeError maps service errors onto JSON error responses.
func writeError(c echo.Context, logger *zap.Logger, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid class session", "field": verr.Field, "reason": verr.Reason})
	case errors.Is(err, service.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "class session not found"})
	case errors.Is(err, service.ErrReservationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrSessionStarted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "class session already started"})
	case errors.Is(err, service.ErrReservationNotConfirmed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation is not confirmed"})
	case errors.Is(err, ledger.ErrConcurrencyConflict):
		// Already logged with session and member by the service.
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "concurrency conflict"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "request timed out"})
	}
	logger.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
