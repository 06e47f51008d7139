package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/a11y-auditor/internal/console/service"
	"github.com/xela07ax/a11y-auditor/internal/domain"
)

type AuditHandler struct {
	service *service.AuditService
	logger  *zap.Logger
}

func NewAuditHandler(s *service.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{service: s, logger: logger.Named("audit-handler")}
}

// Get возвращает аудит с нарушениями.
// GET /v1/audits/{id}
func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err, "Failed to retrieve audit")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Events возвращает журнал этапов аудита.
// GET /v1/audits/{id}/events
func (h *AuditHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, err := h.service.Events(r.Context(), id)
	if err != nil {
		h.fail(w, err, "Failed to fetch audit events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// Run публикует триггер запуска аудита в статусе Pending.
// POST /v1/audits/{id}/run
func (h *AuditHandler) Run(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Trigger(r.Context(), id); err != nil {
		h.fail(w, err, "Failed to trigger audit")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"audit_id": id, "status": string(domain.AuditPending)})
}

func (h *AuditHandler) fail(w http.ResponseWriter, err error, msg string) {
	switch {
	case service.IsNotFound(err):
		http.Error(w, "Audit not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrNotPending):
		http.Error(w, "Audit is not pending", http.StatusConflict)
	default:
		h.logger.Error(msg, zap.Error(err))
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
