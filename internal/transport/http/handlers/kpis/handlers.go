package kpishandler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/kpi"
	"kpiflow/internal/domain/notifications"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/platform/events"
	"kpiflow/internal/transport/http/api"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

type Handler struct {
	Service *kpi.Service
	Users   *auth.Service
	Perms   middleware.PermissionStore
	Effects *shared.Effects
}

func NewHandler(service *kpi.Service, users *auth.Service, perms middleware.PermissionStore, effects *shared.Effects) *Handler {
	return &Handler{Service: service, Users: users, Perms: perms, Effects: effects}
}

// RegisterRoutes mounts /kpis. Each extra registers further KPI-scoped
// routes on the same sub-router.
func (h *Handler) RegisterRoutes(r chi.Router, extra ...func(chi.Router)) {
	r.Route("/kpis", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermKPIWrite, h.Perms)).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/remaining-weight", h.handlePeriodRemainingWeight)
		r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/{kpiID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermKPIWrite, h.Perms)).Put("/{kpiID}", h.handleUpdate)
		r.With(middleware.RequirePermission(auth.PermKPIWrite, h.Perms)).Delete("/{kpiID}", h.handleDelete)
		r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/{kpiID}/progress", h.handleProgressHistory)
		r.With(middleware.RequirePermission(auth.PermKPIProgress, h.Perms)).Post("/{kpiID}/progress", h.handleProgress)
		r.With(middleware.RequirePermission(auth.PermKPIProgress, h.Perms)).Post("/{kpiID}/submit", h.handleSubmit)
		r.With(middleware.RequirePermission(auth.PermKPIReview, h.Perms)).Post("/{kpiID}/approve", h.handleApprove)
		r.With(middleware.RequirePermission(auth.PermKPIReview, h.Perms)).Post("/{kpiID}/request-changes", h.handleRequestChanges)
		r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/{kpiID}/comments", h.handleListComments)
		r.With(middleware.RequirePermission(auth.PermKPIComment, h.Perms)).Post("/{kpiID}/comments", h.handleAddComment)
		r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/{kpiID}/remaining-weight", h.handleRemainingWeight)
		for _, register := range extra {
			register(r)
		}
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	v := shared.NewValidator()
	quarter, year := shared.PeriodQuery(r, v)
	status := kpi.Status(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && !status.Valid() {
		v.Add("status", "must be a known kpi status")
	}
	if v.Reject(w, requestID) {
		return
	}

	filter := kpi.Filter{
		OwnerID: strings.TrimSpace(r.URL.Query().Get("ownerId")),
		Year:    year,
		Status:  status,
	}
	if quarter != period.All {
		filter.Quarter = quarter
	}
	items, err := h.Service.List(r.Context(), actor, filter)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, items, requestID)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload kpi.CreateInput
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	created, err := h.Service.Create(r.Context(), actor, payload)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "kpi.create", "kpi", created.ID, nil, created)
	api.Created(w, created, requestID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	item, err := h.Service.Get(r.Context(), actor, chi.URLParam(r, "kpiID"))
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, item, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	id := chi.URLParam(r, "kpiID")

	var payload kpi.EditInput
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	before, err := h.Service.Get(r.Context(), actor, id)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	updated, err := h.Service.Update(r.Context(), actor, id, payload)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "kpi.update", "kpi", id, before, updated)
	api.Success(w, updated, requestID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	id := chi.URLParam(r, "kpiID")
	deleted, err := h.Service.Delete(r.Context(), actor, id)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "kpi.delete", "kpi", id, deleted, nil)
	api.Success(w, map[string]string{"id": id, "status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	id := chi.URLParam(r, "kpiID")

	var payload struct {
		Value *float64 `json:"value" validate:"required"`
		Note  string   `json:"note" validate:"max=2000"`
	}
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	updated, err := h.Service.UpdateProgress(r.Context(), actor, id, *payload.Value, payload.Note)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "kpi.progress", "kpi", id, nil, map[string]any{"currentValue": updated.CurrentValue})
	api.Success(w, updated, requestID)
}

func (h *Handler) handleProgressHistory(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	history, err := h.Service.ProgressHistory(r.Context(), actor, chi.URLParam(r, "kpiID"))
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, history, middleware.GetRequestID(r.Context()))
}

type transitionRequest struct {
	Message string `json:"message" validate:"max=2000"`
}

type transitionFunc func(ctx context.Context, actor auth.Actor, id, message string) (kpi.KPI, error)

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "kpi.submit", h.Service.Submit)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "kpi.approve", h.Service.Approve)
}

func (h *Handler) handleRequestChanges(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "kpi.request_changes", h.Service.RequestChanges)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, fn transitionFunc) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	id := chi.URLParam(r, "kpiID")

	var payload transitionRequest
	if r.ContentLength != 0 && !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	before, err := h.Service.Get(r.Context(), actor, id)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	updated, err := fn(r.Context(), actor, id, payload.Message)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}

	h.Effects.Record(r, actor, action, "kpi", id, map[string]any{"status": before.Status}, map[string]any{"status": updated.Status})
	h.Effects.Publish(r.Context(), events.New(events.TopicKPIStatusChanged, updated.ID, actor.UserID, map[string]any{
		"ownerId": updated.OwnerID,
		"from":    before.Status,
		"to":      updated.Status,
	}))
	h.notifyTransition(r.Context(), actor, updated)
	api.Success(w, updated, requestID)
}

// notifyTransition tells the other side of the approval loop: the manager
// when an employee submits, the owner otherwise.
func (h *Handler) notifyTransition(ctx context.Context, actor auth.Actor, k kpi.KPI) {
	switch k.Status {
	case kpi.StatusPendingReview:
		owner, err := h.Users.GetUser(ctx, k.OwnerID)
		if err != nil {
			slog.Warn("kpi submit owner lookup failed", "kpiId", k.ID, "err", err)
			return
		}
		h.Effects.Notification(ctx, owner.ManagerID, notifications.TypeKPISubmitted,
			"KPI submitted for review",
			fmt.Sprintf("%s submitted %q for %s %d.", k.OwnerName, k.Title, k.Quarter, k.Year))
	case kpi.StatusApproved:
		h.Effects.Notification(ctx, k.OwnerID, notifications.TypeKPIApproved,
			"KPI approved",
			fmt.Sprintf("%s approved %q.", actor.Name, k.Title))
	case kpi.StatusNeedsRevision:
		h.Effects.Notification(ctx, k.OwnerID, notifications.TypeKPIChangesRequested,
			"Changes requested on KPI",
			fmt.Sprintf("%s requested changes to %q.", actor.Name, k.Title))
	}
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	comments, err := h.Service.Comments(r.Context(), actor, chi.URLParam(r, "kpiID"))
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, comments, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	id := chi.URLParam(r, "kpiID")

	var payload struct {
		Message string `json:"message" validate:"required,max=2000"`
		Tag     string `json:"tag" validate:"omitempty,oneof=Info 'Revision Required' Blocker"`
	}
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	tag := kpi.CommentTag(payload.Tag)
	if tag == "" {
		tag = kpi.TagInfo
	}
	comment, err := h.Service.AddComment(r.Context(), actor, id, payload.Message, tag)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "kpi.comment", "kpi", id, nil, comment)
	api.Created(w, comment, requestID)
}

func (h *Handler) handleRemainingWeight(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	id := chi.URLParam(r, "kpiID")
	item, err := h.Service.Get(r.Context(), actor, id)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	remaining, err := h.Service.RemainingWeight(r.Context(), actor, item.PeriodKey(), id)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, remainingWeight(item.PeriodKey(), remaining, item.Weight), middleware.GetRequestID(r.Context()))
}

// handlePeriodRemainingWeight answers the create dialog, before a KPI
// exists.
func (h *Handler) handlePeriodRemainingWeight(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	v := shared.NewValidator()
	ownerID := strings.TrimSpace(r.URL.Query().Get("ownerId"))
	v.Required("ownerId", ownerID, "owner id is required")
	quarter, year := shared.PeriodQuery(r, v)
	if quarter == "" || quarter == period.All {
		v.Add("quarter", "must be one of Q1, Q2, Q3, Q4")
	}
	if year == 0 {
		v.Add("year", "is required")
	}
	if v.Reject(w, requestID) {
		return
	}

	key := period.NewKey(ownerID, quarter, year)
	remaining, err := h.Service.RemainingWeight(r.Context(), actor, key, "")
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, remainingWeight(key, remaining, 0), requestID)
}

func remainingWeight(key period.Key, remaining, current int) map[string]any {
	return map[string]any{
		"employeeId": key.EmployeeID,
		"quarter":    key.Quarter,
		"year":       key.Year,
		"remaining":  remaining,
		"maxAllowed": remaining + current,
	}
}
