package settingshandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/settings"
	"kpiflow/internal/transport/http/api"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

type Handler struct {
	Service *settings.Service
	Perms   middleware.PermissionStore
	Effects *shared.Effects
}

func NewHandler(service *settings.Service, perms middleware.PermissionStore, effects *shared.Effects) *Handler {
	return &Handler{Service: service, Perms: perms, Effects: effects}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermSettingsRead, h.Perms)).Get("/settings", h.handleGet)
	r.With(middleware.RequirePermission(auth.PermSettingsWrite, h.Perms)).Put("/settings", h.handleUpdate)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Service.Get(r.Context())
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, cfg, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload settings.Update
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	before, err := h.Service.Get(r.Context())
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	updated, err := h.Service.Update(r.Context(), actor, payload)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "settings.update", "system_config", "1", before, updated)
	api.Success(w, updated, requestID)
}
