package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/focusms/server-go/internal/config"
	apperrors "github.com/focusms/server-go/internal/errors"
	"github.com/focusms/server-go/internal/events"
	"github.com/focusms/server-go/internal/localstore"
	"github.com/focusms/server-go/internal/metrics"
	"github.com/focusms/server-go/internal/model"
	"github.com/focusms/server-go/internal/timer"
)

// SessionService owns the per-owner lifecycle engines, picks the backing
// store for each block, and feeds lifecycle events to the broker.
type SessionService struct {
	stores         *Stores
	local          *localstore.Store
	manager        *timer.Manager
	broker         *events.Broker
	clock          timer.Clock
	defaultMinutes int
}

func NewSessionService(
	stores *Stores,
	local *localstore.Store,
	broker *events.Broker,
	clock timer.Clock,
	defaultMinutes int,
) *SessionService {
	return &SessionService{
		stores:         stores,
		local:          local,
		manager:        timer.NewManager(),
		broker:         broker,
		clock:          clock,
		defaultMinutes: defaultMinutes,
	}
}

func (s *SessionService) Status(owner model.Owner) (timer.Status, error) {
	engine, err := s.engineFor(owner)
	if err != nil {
		return timer.Status{}, err
	}
	return engine.Status(), nil
}

func (s *SessionService) BeginCheckin(owner model.Owner) error {
	engine, err := s.engineFor(owner)
	if err != nil {
		return err
	}
	return engine.BeginCheckin()
}

func (s *SessionService) CancelCheckin(owner model.Owner) error {
	engine, err := s.engineFor(owner)
	if err != nil {
		return err
	}
	return engine.CancelCheckin()
}

func (s *SessionService) SelectDuration(owner model.Owner, minutes int) error {
	if minutes <= 0 || minutes > config.MaxBlockMinutes {
		return apperrors.InvalidInput("planned_minutes", "out of range")
	}
	engine, err := s.engineFor(owner)
	if err != nil {
		return err
	}
	return engine.SelectDuration(minutes)
}

func (s *SessionService) Start(ctx context.Context, owner model.Owner, params timer.StartParams) (*model.FocusSession, error) {
	if params.PlannedMinutes < 0 || params.PlannedMinutes > config.MaxBlockMinutes {
		return nil, apperrors.InvalidInput("planned_minutes", "out of range")
	}
	engine, err := s.engineFor(owner)
	if err != nil {
		return nil, err
	}
	session, err := engine.Start(ctx, params)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("owner", owner.Key()).
		Str("sessionId", session.ID).
		Int("plannedMinutes", session.PlannedMinutes).
		Msg("focus block started")
	return session, nil
}

func (s *SessionService) Interrupt(ctx context.Context, owner model.Owner) (int, error) {
	engine, err := s.engineFor(owner)
	if err != nil {
		return 0, err
	}
	return engine.Interrupt(ctx)
}

func (s *SessionService) RequestEnd(owner model.Owner) error {
	engine, err := s.engineFor(owner)
	if err != nil {
		return err
	}
	return engine.RequestEnd()
}

func (s *SessionService) Resume(owner model.Owner) error {
	engine, err := s.engineFor(owner)
	if err != nil {
		return err
	}
	return engine.Resume()
}

func (s *SessionService) Complete(ctx context.Context, owner model.Owner, params timer.EndParams) (*model.FocusSession, error) {
	engine, err := s.engineFor(owner)
	if err != nil {
		return nil, err
	}
	session, err := engine.Complete(ctx, params)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("owner", owner.Key()).
		Str("sessionId", session.ID).
		Str("result", string(*session.Result)).
		Int("interruptions", session.InterruptionsCount).
		Msg("focus block completed")
	return session, nil
}

func (s *SessionService) Reset(owner model.Owner) error {
	engine, err := s.engineFor(owner)
	if err != nil {
		return err
	}
	return engine.Reset()
}

func (s *SessionService) List(ctx context.Context, owner model.Owner, limit int) ([]model.FocusSession, error) {
	store, err := s.stores.ForOwner(owner)
	if err != nil {
		return nil, err
	}
	return store.List(ctx, time.Time{}, limit)
}

// Metrics recomputes the aggregates on demand from the owner's full session
// collection; nothing aggregate is ever persisted.
func (s *SessionService) Metrics(ctx context.Context, owner model.Owner) (metrics.Metrics, error) {
	store, err := s.stores.ForOwner(owner)
	if err != nil {
		return metrics.Metrics{}, err
	}
	sessions, err := store.List(ctx, time.Time{}, 0)
	if err != nil {
		return metrics.Metrics{}, apperrors.Database(err)
	}
	return metrics.Calculate(sessions, s.clock.Now()), nil
}

func (s *SessionService) Settings(deviceID string) model.Settings {
	return s.local.Settings(deviceID)
}

func (s *SessionService) SaveSettings(deviceID string, settings model.Settings) error {
	if settings.DefaultDuration <= 0 || settings.DefaultDuration > config.MaxBlockMinutes {
		return apperrors.InvalidInput("defaultDuration", "out of range")
	}
	s.local.SaveSettings(deviceID, settings)
	return nil
}

// ClearLocalSessions removes the device's local history. Called only after a
// successful migration.
func (s *SessionService) ClearLocalSessions(deviceID string) {
	s.local.ClearSessions(deviceID)
}

// LocalSessions returns the device's raw local history, the migration
// candidate set.
func (s *SessionService) LocalSessions(deviceID string) []model.FocusSession {
	return s.local.Sessions(deviceID)
}

// EvictIdleEngines drops engines that have sat at idle since before
// now-maxIdle. Without the sweep, every device id ever seen would pin an
// engine and its event-forwarding goroutine for the process lifetime.
func (s *SessionService) EvictIdleEngines(maxIdle time.Duration) int {
	cutoff := s.clock.Now().Add(-maxIdle)
	evicted := s.manager.Evict(func(e *timer.Engine) bool {
		return e.IdleSince(cutoff)
	})
	if evicted > 0 {
		log.Info().Int("evicted", evicted).Msg("idle lifecycle engines evicted")
	}
	return evicted
}

func (s *SessionService) engineFor(owner model.Owner) (*timer.Engine, error) {
	key := owner.Key()
	if engine, ok := s.manager.Get(key); ok {
		return engine, nil
	}

	store, err := s.stores.ForOwner(owner)
	if err != nil {
		return nil, err
	}

	minutes := s.defaultMinutes
	if owner.DeviceID != "" {
		minutes = s.local.Settings(owner.DeviceID).DefaultDuration
	}

	var created bool
	engine := s.manager.GetOrCreate(key, func() *timer.Engine {
		created = true
		return timer.NewEngine(key, store, s.counterFor(owner), s.clock, s.stores.NewID(owner), minutes)
	})
	if created {
		go s.forwardEvents(key, engine)
	}
	return engine, nil
}

func (s *SessionService) counterFor(owner model.Owner) timer.Counter {
	if owner.DeviceID == "" {
		return nopCounter{}
	}
	return &deviceCounter{store: s.local, deviceID: owner.DeviceID}
}

func (s *SessionService) forwardEvents(ownerKey string, engine *timer.Engine) {
	for ev := range engine.Events() {
		payload, err := json.Marshal(struct {
			RemainingSeconds int                 `json:"remainingSeconds"`
			Interruptions    int                 `json:"interruptions"`
			Session          *model.FocusSession `json:"session,omitempty"`
		}{ev.RemainingSeconds, ev.Interruptions, ev.Session})
		if err != nil {
			log.Error().Err(err).Msg("marshal lifecycle event")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.broker.Publish(ctx, ownerKey, events.Event{Type: string(ev.Type), Data: payload}); err != nil {
			log.Warn().Err(err).Str("owner", ownerKey).Str("event", string(ev.Type)).
				Msg("lifecycle event not published")
		}
		cancel()
	}
}

// deviceCounter is the device-local completed-blocks counter. It triggers
// the one-time account-creation prompt when it reaches exactly 1.
type deviceCounter struct {
	store    *localstore.Store
	deviceID string
}

func (c *deviceCounter) Increment() int {
	return c.store.IncrementCompletedBlocks(c.deviceID)
}

// nopCounter backs owners with no device context; it can never reach 1, so
// the signup prompt never fires for them.
type nopCounter struct{}

func (nopCounter) Increment() int { return 0 }
