package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
	"github.com/priyanshudevsingh/quickmailer/internal/stats"
)

type StatsService interface {
	Dashboard(ctx context.Context, userID uuid.UUID) (*stats.Dashboard, error)
}

// StatsHandler serves /api/stats.
type StatsHandler struct {
	svc   StatsService
	guard Guard
}

func NewStatsHandler(svc StatsService, guard Guard) *StatsHandler {
	return &StatsHandler{svc: svc, guard: guard}
}

func (h *StatsHandler) Routes(r httpapi.Router) {
	r.Route("/api/stats", func(r httpapi.Router) {
		r.Use(h.guard.all()...)
		r.GET("/dashboard", h.dashboard)
	})
}

func (h *StatsHandler) dashboard(c *httpapi.Context) error {
	d, err := h.svc.Dashboard(c.Context(), c.UserID())
	if err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Dashboard statistics retrieved", d)
}
