package authhandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/transport/http/api"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

type Handler struct {
	Service *auth.Service
	Effects *shared.Effects
}

func NewHandler(service *auth.Service, effects *shared.Effects) *Handler {
	return &Handler{Service: service, Effects: effects}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfaCode" validate:"omitempty,len=6,numeric"`
}

// RegisterRoutes mounts login outside the authenticated group and /me
// inside it.
func (h *Handler) RegisterRoutes(public, private chi.Router) {
	public.Post("/auth/login", h.HandleLogin)
	private.Get("/auth/me", h.HandleMe)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload loginRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}

	result, err := h.Service.Login(r.Context(), payload.Email, payload.Password, payload.MFACode)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, result.User.Actor(), "auth.login", "user", result.User.ID, nil, nil)
	api.Success(w, result, requestID)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	user, err := h.Service.GetUser(r.Context(), actor.UserID)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, user, middleware.GetRequestID(r.Context()))
}
