package handler

import (
	"encoding/json"
	"net/http"

	"github.com/focusms/server-go/internal/config"
	"github.com/focusms/server-go/internal/middleware"
	"github.com/focusms/server-go/internal/model"
	"github.com/focusms/server-go/internal/service"
)

// SettingsHandler reads and writes per-device preferences. Settings live on
// the device in both auth modes, so a device id is always required.
type SettingsHandler struct {
	sessions *service.SessionService
}

func NewSettingsHandler(sessions *service.SessionService) *SettingsHandler {
	return &SettingsHandler{sessions: sessions}
}

// GET /v1/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		model.Settings
		DurationPresets []int `json:"durationPresets"`
	}{h.sessions.Settings(deviceID), config.DurationPresets})
}

// PUT /v1/settings
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.deviceID(w, r)
	if !ok {
		return
	}

	var settings model.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if err := h.sessions.SaveSettings(deviceID, settings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) deviceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return "", false
	}
	if owner.DeviceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Settings require a device id"})
		return "", false
	}
	return owner.DeviceID, true
}
