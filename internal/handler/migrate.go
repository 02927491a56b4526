package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/focusms/server-go/internal/middleware"
	"github.com/focusms/server-go/internal/service"
)

// migrator is the merge surface the handler needs. Satisfied by
// service.MigrationService.
type migrator interface {
	Migrate(ctx context.Context, userID string, payloads []json.RawMessage) (*service.MigrationResult, error)
}

// MigrateHandler accepts a device's local session history and merges it into
// the authenticated user's remote store. The local copy is cleared only after
// the merge reports success, so a failed migration leaves the history
// recoverable.
type MigrateHandler struct {
	migration migrator
	sessions  *service.SessionService
}

func NewMigrateHandler(migration migrator, sessions *service.SessionService) *MigrateHandler {
	return &MigrateHandler{migration: migration, sessions: sessions}
}

// POST /v1/migrate
func (h *MigrateHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetOwner(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	if !owner.IsUser() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Migration requires an authenticated user"})
		return
	}

	var req struct {
		Sessions []json.RawMessage `json:"sessions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Sessions == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid sessions format"})
		return
	}

	result, err := h.migration.Migrate(r.Context(), owner.UserID, req.Sessions)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.NothingToMigrate() {
		writeJSON(w, http.StatusOK, map[string]string{"message": "No valid sessions to migrate"})
		return
	}

	// Two-phase sequencing: the local store is cleared only after the remote
	// upsert succeeded.
	if owner.DeviceID != "" {
		h.sessions.ClearLocalSessions(owner.DeviceID)
		log.Info().Str("deviceId", owner.DeviceID).Msg("local sessions cleared after migration")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Migration successful",
		"migrated": result.Migrated,
	})
}
