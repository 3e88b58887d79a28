package usershandler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/transport/http/api"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

type Handler struct {
	Service *auth.Service
	Perms   middleware.PermissionStore
	Effects *shared.Effects
}

func NewHandler(service *auth.Service, perms middleware.PermissionStore, effects *shared.Effects) *Handler {
	return &Handler{Service: service, Perms: perms, Effects: effects}
}

type trainingRequest struct {
	Completed *bool `json:"completed" validate:"required"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermUsersRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermTrainingManage, h.Perms)).Post("/{userID}/training", h.handleTraining)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	filter := auth.UserFilter{ManagerID: strings.TrimSpace(r.URL.Query().Get("managerId"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
		role, err := auth.ParseRole(raw)
		if err != nil {
			v := shared.NewValidator()
			v.Add("role", "must be one of Employee, Manager, HR, Admin")
			v.Reject(w, requestID)
			return
		}
		filter.Role = role
	}
	users, err := h.Service.ListUsers(r.Context(), filter)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	if users == nil {
		users = []auth.User{}
	}
	api.Success(w, users, requestID)
}

func (h *Handler) handleTraining(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload trainingRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	id := chi.URLParam(r, "userID")
	user, err := h.Service.SetTraining(r.Context(), id, *payload.Completed)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "user.training", "user", id, nil, map[string]any{
		"trainingCompleted": user.TrainingCompleted,
		"trainingDate":      user.TrainingDate,
	})
	api.Success(w, user, requestID)
}
