package evidencehandler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/evidence"
	"kpiflow/internal/transport/http/api"
	"kpiflow/internal/transport/http/middleware"
	"kpiflow/internal/transport/http/shared"
)

// formOverhead leaves room for multipart headers around the file part.
const formOverhead = 64 << 10

type Handler struct {
	Service *evidence.Service
	Perms   middleware.PermissionStore
	Effects *shared.Effects
}

func NewHandler(service *evidence.Service, perms middleware.PermissionStore, effects *shared.Effects) *Handler {
	return &Handler{Service: service, Perms: perms, Effects: effects}
}

// RegisterRoutes expects r to be the /kpis sub-router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermEvidenceUpload, h.Perms)).Post("/{kpiID}/evidence", h.handleUpload)
	r.With(middleware.RequirePermission(auth.PermKPIRead, h.Perms)).Get("/{kpiID}/evidence", h.handleDownload)
	r.With(middleware.RequirePermission(auth.PermEvidenceAudit, h.Perms)).Post("/{kpiID}/audit", h.handleAudit)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	requestID := middleware.GetRequestID(r.Context())
	id := chi.URLParam(r, "kpiID")

	if err := r.ParseMultipartForm(h.Service.MaxBytes() + formOverhead); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "evidence file too large", requestID)
			return
		}
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "expected multipart form with a file field", requestID)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "file", Reason: "is required"}})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.Service.MaxBytes()+1))
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "could not read evidence file", requestID)
		return
	}

	updated, err := h.Service.Upload(r.Context(), actor, id, header.Filename, data)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "kpi.evidence_upload", "kpi", id, nil, map[string]any{
		"evidenceName": updated.EvidenceName,
		"evidenceUrl":  updated.EvidenceURL,
		"bytes":        len(data),
	})
	api.Success(w, updated, requestID)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	name, data, err := h.Service.Download(r.Context(), actor, chi.URLParam(r, "kpiID"))
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Disposition", `attachment; filename="`+shared.SafeFilename(name)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetActor(r.Context())
	id := chi.URLParam(r, "kpiID")
	result, err := h.Service.Audit(r.Context(), actor, id)
	if err != nil {
		h.Effects.Fail(w, r, err)
		return
	}
	h.Effects.Record(r, actor, "kpi.ai_audit", "kpi", id, nil, map[string]any{
		"score":         result.Score,
		"justification": result.Justification,
	})
	if h.Effects != nil && h.Effects.Metrics != nil {
		h.Effects.Metrics.RecordEvent("evidence.audit")
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}
