package reviewshandler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/notifications"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/review"
	"kpiflow/internal/domain/scoring"
	"kpiflow/internal/platform/events"
	"kpiflow/internal/transport/http/api"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

// LockMarker is told about freshly finalized periods so a lock cache can
// answer without a store round trip.
type LockMarker interface {
	MarkLocked(ctx context.Context, key period.Key)
}

type Handler struct {
	Service *review.Service
	Locks   LockMarker
	Perms   middleware.PermissionStore
	Effects *shared.Effects
}

func NewHandler(service *review.Service, locks LockMarker, perms middleware.PermissionStore, effects *shared.Effects) *Handler {
	return &Handler{Service: service, Locks: locks, Perms: perms, Effects: effects}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reviews", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermReviewRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermReviewFinalize, h.Perms)).Post("/finalize", h.handleFinalize)
		r.With(middleware.RequirePermission(auth.PermReviewFinalize, h.Perms)).Get("/calibration", h.handleCalibration)
		r.With(middleware.RequirePermission(auth.PermReviewRead, h.Perms)).Get("/{employeeID}/{quarter}/{year}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermReviewRead, h.Perms)).Get("/{employeeID}/{quarter}/{year}/report.pdf", h.handleReport)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	v := shared.NewValidator()
	quarter, year := shared.PeriodQuery(r, v)
	var category scoring.Category
	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" {
		parsed, err := scoring.ParseCategory(raw)
		if err != nil {
			v.Add("category", "must be a performance category")
		}
		category = parsed
	}
	if v.Reject(w, requestID) {
		return
	}

	reviews, err := h.Service.List(r.Context(), actor, review.Filter{
		EmployeeID: strings.TrimSpace(r.URL.Query().Get("employeeId")),
		Quarter:    quarter,
		Year:       year,
		Category:   category,
	})
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, reviews, requestID)
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload struct {
		EmployeeID    string   `json:"employeeId" validate:"required"`
		Quarter       string   `json:"quarter" validate:"required"`
		Year          int      `json:"year" validate:"omitempty,gte=2000,lte=2100"`
		FeedbackScore *float64 `json:"feedbackScore" validate:"required"`
	}
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	quarter, err := period.ParseQuarter(payload.Quarter)
	if err != nil {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "quarter", Reason: "must be one of Q1, Q2, Q3, Q4 or All"}})
		return
	}

	final, err := h.Service.Finalize(r.Context(), actor, review.FinalizeInput{
		EmployeeID:    payload.EmployeeID,
		Quarter:       quarter,
		Year:          payload.Year,
		FeedbackScore: payload.FeedbackScore,
	})
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}

	if h.Locks != nil {
		h.Locks.MarkLocked(r.Context(), final.Key())
	}
	h.Effects.Record(r, actor, "review.finalize", "final_review", final.ID, nil, final)
	h.Effects.Publish(r.Context(), events.New(events.TopicReviewFinalized, final.ID, actor.UserID, final))
	h.Effects.Notification(r.Context(), final.EmployeeID, notifications.TypeReviewFinalized,
		"Performance review finalized",
		fmt.Sprintf("Your %s %d review is final: %d (%s).", final.Quarter, final.Year, final.FinalScore, final.Category))
	api.Created(w, final, requestID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	key, ok := periodKey(w, r, requestID)
	if !ok {
		return
	}
	final, err := h.Service.Get(r.Context(), actor, key)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, final, requestID)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	key, ok := periodKey(w, r, requestID)
	if !ok {
		return
	}
	final, kpis, err := h.Service.Report(r.Context(), actor, key)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := review.RenderReport(&buf, final, kpis); err != nil {
		api.Fail(w, http.StatusInternalServerError, "report_failed", "failed to render report", requestID)
		return
	}
	filename := shared.SafeFilename(fmt.Sprintf("review-%s-%s-%d.pdf", final.EmployeeID, final.Quarter, final.Year))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleCalibration(w http.ResponseWriter, r *http.Request) {
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
	out, err := h.Service.Calibration(r.Context(), actor, quarter, year)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	api.Success(w, out, requestID)
}

func periodKey(w http.ResponseWriter, r *http.Request, requestID string) (period.Key, bool) {
	v := shared.NewValidator()
	quarter, year := shared.PeriodParams(r, v)
	if quarter == period.All {
		v.Add("quarter", "must be one of Q1, Q2, Q3, Q4")
	}
	if v.Reject(w, requestID) {
		return period.Key{}, false
	}
	return period.NewKey(chi.URLParam(r, "employeeID"), quarter, year), true
}
