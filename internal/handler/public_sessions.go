package handler

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/readmodel"
	"github.com/iliyamo/gym-class-booking/internal/service"
)

// SessionHandler serves the class catalog and the admin scheduling
// endpoints.
type SessionHandler struct {
	Svc     *service.ReservationService
	Logger  *zap.Logger
	Timeout time.Duration
}

func NewSessionHandler(svc *service.ReservationService, logger *zap.Logger, timeout time.Duration) *SessionHandler {
	if svc == nil {
		panic("nil service passed to NewSessionHandler")
	}
	return &SessionHandler{Svc: svc, Logger: logger, Timeout: timeout}
}

// parseSearch reads the catalog filters.  Time bounds are RFC 3339 and
// apply to starts_at; without either only upcoming sessions are listed.
func parseSearch(c echo.Context, now time.Time) (q model.SessionQuery, page, pageSize int, msg string) {
	q.Text = strings.TrimSpace(c.QueryParam("q"))
	q.Category = strings.TrimSpace(c.QueryParam("category"))
	q.Level = strings.ToUpper(strings.TrimSpace(c.QueryParam("level")))
	if q.Level != "" && !model.ValidLevel(q.Level) {
		return q, 0, 0, "invalid level"
	}
	if v := c.QueryParam("trainer_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			return q, 0, 0, "invalid trainer_id"
		}
		q.TrainerID = id
	}
	for _, b := range []struct {
		name string
		dst  **time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		v := c.QueryParam(b.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, 0, 0, "invalid " + b.name + ", expected RFC3339"
		}
		*b.dst = &t
	}
	if q.From == nil && q.To == nil {
		q.From = &now
	}

	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if page > math.MaxInt32/pageSize {
		return q, 0, 0, "page too large"
	}
	q.Limit = pageSize
	q.Offset = (page - 1) * pageSize
	return q, page, pageSize, ""
}

// SearchSessions handles GET /v1/sessions.
func (h *SessionHandler) SearchSessions(c echo.Context) error {
	q, page, pageSize, msg := parseSearch(c, time.Now().UTC())
	if msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	items, total, err := h.Svc.SearchSessions(ctx, q)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	if items == nil {
		items = []readmodel.SessionView{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":      items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetSession handles GET /v1/sessions/:id.
func (h *SessionHandler) GetSession(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	v, err := h.Svc.GetSession(ctx, id)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, v)
}

// Availability handles GET /v1/sessions/:id/availability.
func (h *SessionHandler) Availability(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid session id"})
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	av, err := h.Svc.Availability(ctx, id)
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, av)
}
