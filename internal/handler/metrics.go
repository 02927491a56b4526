package handler

import (
	"net/http"

	"github.com/focusms/server-go/internal/middleware"
	"github.com/focusms/server-go/internal/service"
)

type MetricsHandler struct {
	sessions *service.SessionService
}

func NewMetricsHandler(sessions *service.SessionService) *MetricsHandler {
	return &MetricsHandler{sessions: sessions}
}

// GET /v1/metrics
func (h *MetricsHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	m, err := h.sessions.Metrics(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
