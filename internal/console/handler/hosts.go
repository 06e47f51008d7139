package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/a11y-auditor/internal/console/service"
)

type HostHandler struct {
	service *service.HostService
	logger  *zap.Logger
}

func NewHostHandler(s *service.HostService, logger *zap.Logger) *HostHandler {
	return &HostHandler{service: s, logger: logger.Named("host-handler")}
}

// List: GET /v1/hosts/denied
func (h *HostHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.List())
}

// Deny: PUT /v1/hosts/denied/{host}
func (h *HostHandler) Deny(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	if err := h.service.Deny(r.Context(), host); err != nil {
		h.logger.Error("deny host failed", zap.String("host", host), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Allow: DELETE /v1/hosts/denied/{host}
func (h *HostHandler) Allow(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	if err := h.service.Allow(r.Context(), host); err != nil {
		h.logger.Error("allow host failed", zap.String("host", host), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
