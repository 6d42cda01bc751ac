package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/gym-class-booking/internal/ledger"
	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/service"
)

// BookingHandler exposes booking, cancellation and the waitlist.  Every
// method assumes the JWT and role middleware already ran.
type BookingHandler struct {
	Svc     *service.ReservationService
	Logger  *zap.Logger
	Timeout time.Duration
}

func NewBookingHandler(svc *service.ReservationService, logger *zap.Logger, timeout time.Duration) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{Svc: svc, Logger: logger, Timeout: timeout}
}

type bookReq struct {
	Waitlist bool `json:"waitlist"`
}

type outcomeResp struct {
	Outcome     ledger.Outcome     `json:"outcome"`
	Reservation *model.Reservation `json:"reservation,omitempty"`
	Promoted    *model.Reservation `json:"promoted,omitempty"`
	Position    int                `json:"position,omitempty"`
}

// Book handles POST /v1/sessions/:id/book.  The optional body
// {"waitlist": true} queues the member when the session is full.
func (h *BookingHandler) Book(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	res, err := h.Svc.Book(ctx, sessionID, a.UserID, req.Waitlist)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(outcomeStatus(res.Outcome), outcomeResp{
		Outcome:     res.Outcome,
		Reservation: res.Reservation,
		Position:    res.Position,
	})
}

// LeaveWaitlist handles DELETE /v1/sessions/:id/waitlist.
func (h *BookingHandler) LeaveWaitlist(c echo.Context) error {
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

	out, err := h.Svc.LeaveWaitlist(ctx, sessionID, a.UserID)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(outcomeStatus(out), outcomeResp{Outcome: out})
}

// WaitlistPosition handles GET /v1/sessions/:id/waitlist.
func (h *BookingHandler) WaitlistPosition(c echo.Context) error {
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

	pos, err := h.Svc.WaitlistPosition(ctx, sessionID, a.UserID)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	if pos == 0 {
		return c.JSON(http.StatusNotFound, outcomeResp{Outcome: ledger.NotFound})
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": sessionID, "position": pos})
}

// ListReservations handles GET /v1/my-reservations.
func (h *BookingHandler) ListReservations(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	list, err := h.Svc.MemberReservations(ctx, a.UserID)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	if list == nil {
		list = []model.Reservation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"data": list})
}

// GetReservation handles GET /v1/reservations/:id.
func (h *BookingHandler) GetReservation(c echo.Context) error {
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

	r, err := h.Svc.GetReservation(ctx, id, a)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, r)
}

// CancelReservation handles DELETE /v1/reservations/:id for members and
// DELETE /v1/admin/reservations/:id for admins.  A freed seat goes to the
// head of the waitlist, reported as "promoted".
func (h *BookingHandler) CancelReservation(c echo.Context) error {
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

	res, err := h.Svc.Cancel(ctx, id, a)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(outcomeStatus(res.Outcome), outcomeResp{
		Outcome:     res.Outcome,
		Reservation: res.Reservation,
		Promoted:    res.Promoted,
	})
}
