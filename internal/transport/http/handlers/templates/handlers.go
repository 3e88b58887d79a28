package templateshandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/templates"
	"kpiflow/internal/transport/http/api"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

type Handler struct {
	Service *templates.Service
	Perms   middleware.PermissionStore
	Effects *shared.Effects
}

func NewHandler(service *templates.Service, perms middleware.PermissionStore, effects *shared.Effects) *Handler {
	return &Handler{Service: service, Perms: perms, Effects: effects}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermTemplatesRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermTemplatesManage, h.Perms)).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermTemplatesManage, h.Perms)).Delete("/{templateID}", h.handleDelete)
		r.With(middleware.RequirePermission(auth.PermTemplatesRead, h.Perms)).Get("/roles/{jobTitle}", h.handleRoleGoals)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.List(r.Context())
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload templates.CreateInput
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	created, err := h.Service.Create(r.Context(), actor, payload)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "template.create", "kpi_template", created.ID, nil, created)
	api.Created(w, created, requestID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	id := chi.URLParam(r, "templateID")
	if err := h.Service.Delete(r.Context(), actor, id); err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "template.delete", "kpi_template", id, nil, nil)
	api.Success(w, map[string]string{"id": id, "status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRoleGoals(w http.ResponseWriter, r *http.Request) {
	jobTitle := chi.URLParam(r, "jobTitle")
	api.Success(w, map[string]any{
		"jobTitle": jobTitle,
		"goals":    templates.RoleGoals(jobTitle),
	}, middleware.GetRequestID(r.Context()))
}
