package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/focusms/server-go/internal/errors"
	"github.com/focusms/server-go/internal/localstore"
	"github.com/focusms/server-go/internal/model"
)

func TestForOwner(t *testing.T) {
	local := localstore.InMemory(50)

	t.Run("anonymous owners get the local store", func(t *testing.T) {
		stores := NewStores(local, nil)
		store, err := stores.ForOwner(model.AnonymousOwner("device-abc"))
		require.NoError(t, err)
		assert.IsType(t, &localSessionStore{}, store)
	})

	t.Run("authenticated owners need the remote store", func(t *testing.T) {
		stores := NewStores(local, nil)
		_, err := stores.ForOwner(model.UserOwner("u-1"))
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeStoreUnconfigured, apperrors.GetCode(err))
	})

	t.Run("authenticated owners get the remote store when configured", func(t *testing.T) {
		stores := NewStores(local, new(mockSessionRepo))
		store, err := stores.ForOwner(model.UserOwner("u-1"))
		require.NoError(t, err)
		assert.IsType(t, &remoteSessionStore{}, store)
	})
}

func TestNewID(t *testing.T) {
	stores := NewStores(localstore.InMemory(50), new(mockSessionRepo))
	now := time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC)

	t.Run("local ids carry the creation timestamp", func(t *testing.T) {
		id := stores.NewID(model.AnonymousOwner("device-abc"))(now)
		assert.Regexp(t, regexp.MustCompile(`^local_\d+_[a-z0-9]{7}$`), id)
	})

	t.Run("remote ids are UUIDs", func(t *testing.T) {
		id := stores.NewID(model.UserOwner("u-1"))(now)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
	})
}

func TestLocalSessionStoreList(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC)

	seed := func(t *testing.T) SessionStore {
		t.Helper()
		stores := NewStores(localstore.InMemory(50), nil)
		store, err := stores.ForOwner(model.AnonymousOwner("device-abc"))
		require.NoError(t, err)
		// Inserted oldest-last on purpose; listing must not depend on it.
		require.NoError(t, store.Create(ctx, &model.FocusSession{
			ID: "mid", StartedAt: base.Add(time.Hour), PlannedMinutes: 50, Outcome: "b", CreatedAt: base.Add(time.Hour),
		}))
		require.NoError(t, store.Create(ctx, &model.FocusSession{
			ID: "newest", StartedAt: base.Add(2 * time.Hour), PlannedMinutes: 50, Outcome: "c", CreatedAt: base.Add(2 * time.Hour),
		}))
		require.NoError(t, store.Create(ctx, &model.FocusSession{
			ID: "oldest", StartedAt: base, PlannedMinutes: 50, Outcome: "a", CreatedAt: base,
		}))
		return store
	}

	t.Run("lists most-recent-first", func(t *testing.T) {
		sessions, err := seed(t).List(ctx, time.Time{}, 0)
		require.NoError(t, err)
		require.Len(t, sessions, 3)
		assert.Equal(t, "newest", sessions[0].ID)
		assert.Equal(t, "mid", sessions[1].ID)
		assert.Equal(t, "oldest", sessions[2].ID)
	})

	t.Run("limit keeps the newest entries", func(t *testing.T) {
		sessions, err := seed(t).List(ctx, time.Time{}, 2)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "newest", sessions[0].ID)
		assert.Equal(t, "mid", sessions[1].ID)
	})

	t.Run("since drops older sessions", func(t *testing.T) {
		sessions, err := seed(t).List(ctx, base.Add(time.Hour), 0)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "newest", sessions[0].ID)
	})

	t.Run("updates land on the stored record", func(t *testing.T) {
		store := seed(t)
		end := base.Add(50 * time.Minute)
		result := model.ResultDone
		require.NoError(t, store.Update(ctx, "oldest", model.SessionUpdate{EndedAt: &end, Result: &result}))

		sessions, err := store.List(ctx, time.Time{}, 0)
		require.NoError(t, err)
		require.Len(t, sessions, 3)
		assert.True(t, sessions[2].Completed())
	})
}
