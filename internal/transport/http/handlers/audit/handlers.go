package audithandler

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/audit"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/transport/http/api"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

const exportLimit = 500

type Handler struct {
	Service *audit.Service
	Perms   middleware.PermissionStore
	Effects *shared.Effects
}

func NewHandler(service *audit.Service, perms middleware.PermissionStore, effects *shared.Effects) *Handler {
	return &Handler{Service: service, Perms: perms, Effects: effects}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/", h.handleListEvents)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/export", h.handleExportEvents)
	})
}

func filterFrom(r *http.Request) audit.Filter {
	q := r.URL.Query()
	return audit.Filter{
		Action:     strings.TrimSpace(q.Get("action")),
		EntityType: strings.TrimSpace(q.Get("entityType")),
		EntityID:   strings.TrimSpace(q.Get("entityId")),
		ActorUser:  strings.TrimSpace(q.Get("actorUserId")),
	}
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	page := shared.ParsePage(r, v, shared.AuditPage)
	if v.Reject(w, requestID) {
		return
	}
	events, err := h.Service.List(r.Context(), actor, filterFrom(r), page.Limit, page.Offset)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, events, requestID)
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	events, err := h.Service.List(r.Context(), actor, filterFrom(r), exportLimit, 0)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-events.csv")
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "actor_id", "actor_role", "action", "entity_type", "entity_id", "request_id", "ip", "created_at"}); err != nil {
		slog.Warn("audit export header failed", "err", err)
	}
	for _, evt := range events {
		if err := writer.Write([]string{evt.ID, evt.ActorID, string(evt.ActorRole), evt.Action, evt.EntityType, evt.EntityID, evt.RequestID, evt.IP, evt.CreatedAt.Format(time.RFC3339)}); err != nil {
			slog.Warn("audit export row failed", "err", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Warn("audit export flush failed", "err", err)
	}
}
