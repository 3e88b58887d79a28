package rewardshandler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/notifications"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/reward"
	"kpiflow/internal/platform/events"
	"kpiflow/internal/transport/http/api"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

type Handler struct {
	Service *reward.Service
	Perms   middleware.PermissionStore
	Effects *shared.Effects
}

func NewHandler(service *reward.Service, perms middleware.PermissionStore, effects *shared.Effects) *Handler {
	return &Handler{Service: service, Perms: perms, Effects: effects}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rewards", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermRewardRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermRewardAssign, h.Perms)).Post("/", h.handleAssign)
		r.With(middleware.RequirePermission(auth.PermRewardAssign, h.Perms)).Get("/eligibility/{employeeID}/{quarter}/{year}", h.handleEligibility)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	v := shared.NewValidator()
	quarter, year := shared.PeriodQuery(r, v)
	var rewardType reward.Type
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		parsed, ok := reward.ParseType(raw)
		if !ok {
			v.Add("type", "must be Bonus, Promotion or Recognition")
		}
		rewardType = parsed
	}
	if v.Reject(w, requestID) {
		return
	}
	if quarter == period.All {
		quarter = ""
	}

	rewards, err := h.Service.List(r.Context(), actor, reward.Filter{
		EmployeeID: strings.TrimSpace(r.URL.Query().Get("employeeId")),
		Quarter:    quarter,
		Year:       year,
		Type:       rewardType,
	})
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, rewards, requestID)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload reward.AssignInput
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	created, err := h.Service.Assign(r.Context(), actor, payload)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}

	h.Effects.Record(r, actor, "reward.assign", "reward", created.ID, nil, created)
	h.Effects.Publish(r.Context(), events.New(events.TopicRewardAssigned, created.EmployeeID, actor.UserID, created))
	h.Effects.Notification(r.Context(), created.EmployeeID, notifications.TypeRewardAssigned,
		"Reward assigned",
		fmt.Sprintf("You received %s for %s %d.", created.Type, created.Quarter, created.Year))
	api.Created(w, created, requestID)
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	v := shared.NewValidator()
	quarter, year := shared.PeriodParams(r, v)
	if v.Reject(w, requestID) {
		return
	}
	out, err := h.Service.Eligibility(r.Context(), actor, period.NewKey(chi.URLParam(r, "employeeID"), quarter, year))
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, out, requestID)
}
