package notificationshandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/notifications"
	"kpiflow/internal/transport/http/api"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

type Handler struct {
	Service *notifications.Service
	Perms   middleware.PermissionStore
	Effects *shared.Effects
}

func NewHandler(service *notifications.Service, perms middleware.PermissionStore, effects *shared.Effects) *Handler {
	return &Handler{Service: service, Perms: perms, Effects: effects}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermNotificationRead, h.Perms))
		r.Get("/", h.handleList)
		r.Get("/unread-count", h.handleUnread)
		r.Post("/{notificationID}/read", h.handleMarkRead)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	page := shared.ParsePage(r, v, shared.NotificationPage)
	if v.Reject(w, requestID) {
		return
	}
	items, err := h.Service.List(r.Context(), actor, page.Limit, page.Offset)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, items, requestID)
}

func (h *Handler) handleUnread(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	count, err := h.Service.Unread(r.Context(), actor)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, map[string]int{"unread": count}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	id := chi.URLParam(r, "notificationID")
	if err := h.Service.MarkRead(r.Context(), actor, id); err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, map[string]string{"id": id, "status": "read"}, middleware.GetRequestID(r.Context()))
}
