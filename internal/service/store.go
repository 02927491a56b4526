package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/focusms/server-go/internal/errors"
	"github.com/focusms/server-go/internal/localstore"
	"github.com/focusms/server-go/internal/model"
	"github.com/focusms/server-go/internal/repository"
	"github.com/focusms/server-go/internal/timer"
)

// SessionStore unifies the device-local store and the remote store behind
// one read/write contract, already scoped to its owner.
type SessionStore interface {
	Create(ctx context.Context, session *model.FocusSession) error
	Update(ctx context.Context, id string, upd model.SessionUpdate) error
	// List returns sessions most-recent-first. Zero since means no window,
	// limit 0 means no limit.
	List(ctx context.Context, since time.Time, limit int) ([]model.FocusSession, error)
}

// Stores selects the backing store for an owner. Selection happens once per
// block, at start time, so a block begun anonymously completes locally even
// if the user authenticates mid-block.
type Stores struct {
	local    *localstore.Store
	sessions repository.SessionRepository // nil when the remote store is unconfigured
}

func NewStores(local *localstore.Store, sessions repository.SessionRepository) *Stores {
	return &Stores{local: local, sessions: sessions}
}

func (s *Stores) ForOwner(owner model.Owner) (SessionStore, error) {
	if owner.IsUser() {
		if s.sessions == nil {
			return nil, apperrors.StoreUnconfigured()
		}
		return &remoteSessionStore{repo: s.sessions, userID: owner.UserID}, nil
	}
	return &localSessionStore{store: s.local, deviceID: owner.DeviceID}, nil
}

// NewID returns the id generator matching the owner's store mode.
func (s *Stores) NewID(owner model.Owner) timer.NewIDFunc {
	if owner.IsUser() {
		return func(time.Time) string { return uuid.NewString() }
	}
	return model.NewLocalSessionID
}

type localSessionStore struct {
	store    *localstore.Store
	deviceID string
}

func (l *localSessionStore) Create(ctx context.Context, session *model.FocusSession) error {
	l.store.AddSession(l.deviceID, *session)
	return nil
}

func (l *localSessionStore) Update(ctx context.Context, id string, upd model.SessionUpdate) error {
	// Unknown ids are a no-op for the local store.
	l.store.UpdateSession(l.deviceID, id, upd)
	return nil
}

func (l *localSessionStore) List(ctx context.Context, since time.Time, limit int) ([]model.FocusSession, error) {
	sessions := l.store.Sessions(l.deviceID)

	if !since.IsZero() {
		filtered := sessions[:0]
		for _, s := range sessions {
			if !s.StartedAt.Before(since) {
				filtered = append(filtered, s)
			}
		}
		sessions = filtered
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})

	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

type remoteSessionStore struct {
	repo   repository.SessionRepository
	userID string
}

func (r *remoteSessionStore) Create(ctx context.Context, session *model.FocusSession) error {
	userID := r.userID
	session.UserID = &userID
	return r.repo.Create(ctx, session)
}

func (r *remoteSessionStore) Update(ctx context.Context, id string, upd model.SessionUpdate) error {
	// The remote store surfaces its native error for missing rows.
	return r.repo.Update(ctx, r.userID, id, upd)
}

func (r *remoteSessionStore) List(ctx context.Context, since time.Time, limit int) ([]model.FocusSession, error) {
	return r.repo.ListByUser(ctx, r.userID, since, limit)
}
