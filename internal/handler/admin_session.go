package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/service"
)

type createSessionReq struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Level       string    `json:"level"`
	TrainerID   uint64    `json:"trainer_id"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Capacity    int       `json:"capacity"`
	Location    string    `json:"location"`
}

// CreateSession handles POST /v1/admin/sessions.
func (h *SessionHandler) CreateSession(c echo.Context) error {
	var req createSessionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	v, err := h.Svc.CreateSession(ctx, service.CreateSessionInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Level:       req.Level,
		TrainerID:   req.TrainerID,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Capacity:    req.Capacity,
		Location:    req.Location,
	})
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// SessionAudit handles GET /v1/admin/sessions/:id/audit.
func (h *SessionHandler) SessionAudit(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	entries, err := h.Svc.SessionAudit(ctx, id)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	return c.JSON(http.StatusOK, echo.Map{"data": entries})
}
