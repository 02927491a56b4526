package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/focusms/server-go/internal/errors"
	"github.com/focusms/server-go/internal/events"
	"github.com/focusms/server-go/internal/localstore"
	"github.com/focusms/server-go/internal/model"
	"github.com/focusms/server-go/internal/service"
	"github.com/focusms/server-go/internal/timer"
)

// stubMigrator replaces the remote merge so the handler's sequencing can be
// observed without a database.
type stubMigrator struct {
	result *service.MigrationResult
	err    error
}

func (s *stubMigrator) Migrate(ctx context.Context, userID string, payloads []json.RawMessage) (*service.MigrationResult, error) {
	return s.result, s.err
}

func newMigrateRouter(t *testing.T, owner model.Owner, migration migrator) (chi.Router, *localstore.Store) {
	t.Helper()
	local := localstore.InMemory(50)
	broker := events.NewBroker(nil)
	t.Cleanup(broker.Close)
	sessions := service.NewSessionService(service.NewStores(local, nil), local, broker, timer.NewClock(), 50)

	r := chi.NewRouter()
	r.Use(withOwner(owner))
	r.Post("/migrate", NewMigrateHandler(migration, sessions).Migrate)
	return r, local
}

func seedLocalHistory(local *localstore.Store, deviceID string) {
	start := time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC)
	local.AddSession(deviceID, model.FocusSession{
		ID:             "local_1773219600000_abc1234",
		StartedAt:      start,
		PlannedMinutes: 50,
		Outcome:        "finish the draft",
		CreatedAt:      start,
	})
}

func TestMigrate(t *testing.T) {
	unconfigured := service.NewMigrationService(nil, nil)

	t.Run("anonymous callers cannot migrate", func(t *testing.T) {
		router, _ := newMigrateRouter(t, model.AnonymousOwner("device-abc"), unconfigured)
		rec, _ := doJSON(t, router, http.MethodPost, "/migrate", `{"sessions": []}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing sessions field is a bad request", func(t *testing.T) {
		router, _ := newMigrateRouter(t, model.UserOwner("u-1"), unconfigured)
		rec, _ := doJSON(t, router, http.MethodPost, "/migrate", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		router, _ := newMigrateRouter(t, model.UserOwner("u-1"), unconfigured)
		rec, _ := doJSON(t, router, http.MethodPost, "/migrate", `not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unconfigured remote store is unavailable", func(t *testing.T) {
		router, _ := newMigrateRouter(t, model.UserOwner("u-1"), unconfigured)
		rec, body := doJSON(t, router, http.MethodPost, "/migrate", `{"sessions": [{"id": "a"}]}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "STORE_UNCONFIGURED", body["code"])
	})
}

// The local history may only disappear once the remote merge has succeeded.
func TestMigrateClearsLocalHistory(t *testing.T) {
	owner := model.UserOwner("u-1")
	owner.DeviceID = "device-abc"

	t.Run("successful merge clears the device history", func(t *testing.T) {
		router, local := newMigrateRouter(t, owner, &stubMigrator{
			result: &service.MigrationResult{Migrated: 1, Inserted: 1},
		})
		seedLocalHistory(local, "device-abc")

		rec, body := doJSON(t, router, http.MethodPost, "/migrate", `{"sessions": [{"id": "a"}]}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(1), body["migrated"])
		assert.Empty(t, local.Sessions("device-abc"))
	})

	t.Run("failed merge leaves the device history intact", func(t *testing.T) {
		router, local := newMigrateRouter(t, owner, &stubMigrator{
			err: apperrors.Database(errors.New("connection reset")),
		})
		seedLocalHistory(local, "device-abc")

		rec, body := doJSON(t, router, http.MethodPost, "/migrate", `{"sessions": [{"id": "a"}]}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "DATABASE_ERROR", body["code"])
		require.Len(t, local.Sessions("device-abc"), 1)
	})

	t.Run("nothing to migrate leaves the device history intact", func(t *testing.T) {
		router, local := newMigrateRouter(t, owner, &stubMigrator{
			result: &service.MigrationResult{},
		})
		seedLocalHistory(local, "device-abc")

		rec, _ := doJSON(t, router, http.MethodPost, "/migrate", `{"sessions": []}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, local.Sessions("device-abc"), 1)
	})

	t.Run("missing device id skips the clear without failing", func(t *testing.T) {
		router, local := newMigrateRouter(t, model.UserOwner("u-1"), &stubMigrator{
			result: &service.MigrationResult{Migrated: 1, Inserted: 1},
		})
		seedLocalHistory(local, "device-abc")

		rec, _ := doJSON(t, router, http.MethodPost, "/migrate", `{"sessions": [{"id": "a"}]}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, local.Sessions("device-abc"), 1)
	})
}
