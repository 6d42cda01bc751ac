package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-class-booking/internal/handler"
	"github.com/iliyamo/gym-class-booking/internal/middleware"
	"github.com/iliyamo/gym-class-booking/internal/model"
)

// RegisterTrainer registers the roster and attendance endpoints.  Admins
// may use them too; the service checks that a trainer runs the session.
func RegisterTrainer(e *echo.Echo, h *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleTrainer, model.RoleAdmin),
	)
	g.GET("/trainer/sessions/:id/reservations", h.SessionRoster)
	g.POST("/reservations/:id/attend", h.MarkAttended)
}

// RegisterAdmin registers scheduling and administrative cancellation.
func RegisterAdmin(e *echo.Echo, s *handler.SessionHandler, b *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/sessions", s.CreateSession)
	g.GET("/sessions/:id/audit", s.SessionAudit)
	g.DELETE("/reservations/:id", b.CancelReservation)
}
