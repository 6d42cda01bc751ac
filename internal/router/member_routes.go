package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-class-booking/internal/handler"
	"github.com/iliyamo/gym-class-booking/internal/middleware"
	"github.com/iliyamo/gym-class-booking/internal/model"
)

// RegisterMember registers member booking endpoints under /v1.  All
// routes require a valid JWT with the MEMBER role and are rate limited
// per member.
func RegisterMember(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleMember),
		limit,
	)
	g.POST("/sessions/:id/book", h.Book)
	g.DELETE("/sessions/:id/waitlist", h.LeaveWaitlist)
	g.GET("/sessions/:id/waitlist", h.WaitlistPosition)
	g.GET("/my-reservations", h.ListReservations)
	g.GET("/reservations/:id", h.GetReservation)
	g.DELETE("/reservations/:id", h.CancelReservation)
}
