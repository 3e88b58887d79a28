package dashboardhandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/dashboard"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/transport/http/api"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

type Handler struct {
	Service *dashboard.Service
	Perms   middleware.PermissionStore
	Effects *shared.Effects
}

func NewHandler(service *dashboard.Service, perms middleware.PermissionStore, effects *shared.Effects) *Handler {
	return &Handler{Service: service, Perms: perms, Effects: effects}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/dashboard", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermDashboardHR, h.Perms)).Get("/hr", h.handleHR)
		r.With(middleware.RequirePermission(auth.PermDashboardTeam, h.Perms)).Get("/team", h.handleTeam)
	})
}

func (h *Handler) handleHR(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	quarter, year, ok := periodFilter(w, r, requestID)
	if !ok {
		return
	}
	out, err := h.Service.HR(r.Context(), actor, quarter, year)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, out, requestID)
}

func (h *Handler) handleTeam(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	quarter, year, ok := periodFilter(w, r, requestID)
	if !ok {
		return
	}
	out, err := h.Service.Team(r.Context(), actor, quarter, year)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, out, requestID)
}

func periodFilter(w http.ResponseWriter, r *http.Request, requestID string) (period.Quarter, int, bool) {
	v := shared.NewValidator()
	quarter, year := shared.PeriodQuery(r, v)
	if v.Reject(w, requestID) {
		return "", 0, false
	}
	return quarter, year, true
}
