// Package router registers the HTTP routes.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/gym-class-booking/internal/config"
	"github.com/iliyamo/gym-class-booking/internal/handler"
	"github.com/iliyamo/gym-class-booking/internal/middleware"
	"github.com/iliyamo/gym-class-booking/internal/model"
)

// Deps carries what the route groups need.
type Deps struct {
	Cfg      config.Config
	Auth     *handler.AuthHandler
	Sessions *handler.SessionHandler
	Booking  *handler.BookingHandler
	Redis    *redis.Client // nil disables cache and rate limit
	Logger   *zap.Logger
}

// Register mounts every route group on e.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e)
	RegisterAuth(e, d.Auth, d.Cfg.JWTSecret)
	RegisterPublic(e, d.Sessions, middleware.NewRedisCache(d.Cfg.Cache, d.Redis, d.Logger))
	RegisterMember(e, d.Booking, d.Cfg.JWTSecret, middleware.NewTokenBucket(d.Cfg.RateLimit, d.Redis, d.Logger))
	RegisterTrainer(e, d.Booking, d.Cfg.JWTSecret)
	RegisterAdmin(e, d.Sessions, d.Booking, d.Cfg.JWTSecret)
}

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the token endpoints under /v1/auth and the
// authenticated /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts a refresh token in the body or a bearer header.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleMember, model.RoleTrainer, model.RoleAdmin),
	)
	auth.GET("/me", a.Me)
}

// RegisterPublic registers the unauthenticated catalog.  Only the search
// listing is cached; availability is always read from the ledger.
func RegisterPublic(e *echo.Echo, h *handler.SessionHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/sessions", h.SearchSessions, cache)
	e.GET("/v1/sessions/:id", h.GetSession)
	e.GET("/v1/sessions/:id/availability", h.Availability)
}
