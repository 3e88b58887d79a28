package devplanshandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/devplan"
	"kpiflow/internal/domain/notifications"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/transport/http/api"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

type Handler struct {
	Service *devplan.Service
	Perms   middleware.PermissionStore
	Effects *shared.Effects
}

func NewHandler(service *devplan.Service, perms middleware.PermissionStore, effects *shared.Effects) *Handler {
	return &Handler{Service: service, Perms: perms, Effects: effects}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/devplans", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermDevPlanManage, h.Perms)).Get("/candidates", h.handleCandidates)
		r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/{employeeID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermDevPlanManage, h.Perms)).Post("/{employeeID}", h.handleGenerate)
		r.With(middleware.RequirePermission(auth.PermDevPlanManage, h.Perms)).Delete("/{employeeID}", h.handleClear)
	})
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	employeeID := chi.URLParam(r, "employeeID")

	var payload struct {
		Force bool `json:"force"`
	}
	if r.ContentLength != 0 && !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	plan, err := h.Service.Generate(r.Context(), actor, employeeID, payload.Force)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "devplan.generate", "user", employeeID, nil, map[string]any{"force": payload.Force, "updatedAt": plan.UpdatedAt})
	h.Effects.Notification(r.Context(), employeeID, notifications.TypeDevPlanReady,
		"Development plan ready",
		"HR prepared a development plan for you.")
	api.Created(w, plan, requestID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	plan, err := h.Service.Get(r.Context(), actor, chi.URLParam(r, "employeeID"))
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, plan, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	employeeID := chi.URLParam(r, "employeeID")
	if err := h.Service.Clear(r.Context(), actor, employeeID); err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "devplan.clear", "user", employeeID, nil, nil)
	api.Success(w, map[string]string{"employeeId": employeeID, "status": "cleared"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCandidates(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	v := shared.NewValidator()
	quarter, year := shared.PeriodQuery(r, v)
	if v.Reject(w, requestID) {
		return
	}
	if quarter == "" {
		quarter = period.All
	}
	candidates, err := h.Service.Candidates(r.Context(), actor, quarter, year)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, candidates, requestID)
}
