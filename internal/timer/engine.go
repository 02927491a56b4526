// Package timer drives a single focus block through its lifecycle:
// idle → start-checkin → running → end-checkin → summary. One engine exists
// per owner; the countdown goroutine is alive only while the block is
// running.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/focusms/server-go/internal/errors"
	"github.com/focusms/server-go/internal/model"
)

// Store is the session store the engine was bound to at block start. The
// binding is never re-evaluated: a block begun against the local store
// finishes against it even if the user authenticates mid-block.
type Store interface {
	Create(ctx context.Context, session *model.FocusSession) error
	Update(ctx context.Context, id string, upd model.SessionUpdate) error
}

// Counter is the device-local completed-blocks counter.
type Counter interface {
	Increment() int
}

type EventType string

const (
	EventStarted      EventType = "block_started"
	EventInterruption EventType = "interruption"
	EventExpired      EventType = "timer_expired"
	EventCompleted    EventType = "block_completed"
	EventSignupPrompt EventType = "signup_prompt"
)

type Event struct {
	Type             EventType `json:"type"`
	RemainingSeconds int       `json:"remainingSeconds"`
	Interruptions    int       `json:"interruptions"`

	Session *model.FocusSession `json:"session,omitempty"`
}

type StartParams struct {
	Outcome        string
	Blocker        string
	PlannedMinutes int
}

type EndParams struct {
	Result   model.Result
	NextStep string
}

// Status is a point-in-time view of the engine for the UI.
type Status struct {
	State            model.BlockState    `json:"state"`
	RemainingSeconds int                 `json:"remainingSeconds"`
	SelectedMinutes  int                 `json:"selectedMinutes"`
	Interruptions    int                 `json:"interruptions"`
	Session          *model.FocusSession `json:"session"`
}

// NewIDFunc builds the id for a newly created session; local and remote
// stores use different formats.
type NewIDFunc func(now time.Time) string

type Engine struct {
	mu sync.Mutex

	ownerKey        string
	state           model.BlockState
	selectedMinutes int
	remaining       int // seconds
	interruptions   int
	session         *model.FocusSession
	lastActive      time.Time
	closed          bool

	store   Store
	counter Counter
	clock   Clock
	newID   NewIDFunc

	events   chan Event
	stopTick chan struct{}
}

func NewEngine(ownerKey string, store Store, counter Counter, clock Clock, newID NewIDFunc, defaultMinutes int) *Engine {
	return &Engine{
		ownerKey:        ownerKey,
		state:           model.StateIdle,
		selectedMinutes: defaultMinutes,
		remaining:       defaultMinutes * 60,
		lastActive:      clock.Now(),
		store:           store,
		counter:         counter,
		clock:           clock,
		newID:           newID,
		events:          make(chan Event, 16),
	}
}

// Events is the lifecycle event stream. Sends are non-blocking: a slow
// consumer drops events rather than stalling the countdown.
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	st := Status{
		State:            e.state,
		RemainingSeconds: e.remaining,
		SelectedMinutes:  e.selectedMinutes,
		Interruptions:    e.interruptions,
	}
	if e.session != nil {
		snap := *e.session
		st.Session = &snap
	}
	return st
}

// SelectDuration picks the planned length for the next block. Only
// meaningful at idle; elsewhere the running block owns the timer.
func (e *Engine) SelectDuration(minutes int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	if e.state != model.StateIdle {
		return apperrors.InvalidState(string(e.state), "change duration")
	}
	if minutes <= 0 {
		return apperrors.InvalidInput("planned_minutes", "must be positive")
	}
	e.selectedMinutes = minutes
	e.remaining = minutes * 60
	return nil
}

func (e *Engine) BeginCheckin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	if e.state != model.StateIdle {
		return apperrors.InvalidState(string(e.state), "begin check-in")
	}
	e.state = model.StateStartCheckin
	return nil
}

// CancelCheckin abandons the start check-in without creating a session.
func (e *Engine) CancelCheckin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	if e.state != model.StateStartCheckin {
		return apperrors.InvalidState(string(e.state), "cancel check-in")
	}
	e.state = model.StateIdle
	e.remaining = e.selectedMinutes * 60
	return nil
}

// Start creates the session record and begins the countdown. Persistence
// failures are logged and swallowed: the timer advances regardless, at the
// cost of possibly losing the record.
func (e *Engine) Start(ctx context.Context, params StartParams) (*model.FocusSession, error) {
	e.mu.Lock()
	e.touchLocked()

	if e.state != model.StateStartCheckin {
		e.mu.Unlock()
		return nil, apperrors.InvalidState(string(e.state), "start block")
	}
	if params.Outcome == "" {
		e.mu.Unlock()
		return nil, apperrors.MissingRequired("outcome")
	}

	minutes := params.PlannedMinutes
	if minutes <= 0 {
		minutes = e.selectedMinutes
	}

	now := e.clock.Now()
	session := &model.FocusSession{
		ID:                 e.newID(now),
		StartedAt:          now,
		PlannedMinutes:     minutes,
		Outcome:            params.Outcome,
		InterruptionsCount: 0,
		CreatedAt:          now,
	}
	if params.Blocker != "" {
		blocker := params.Blocker
		session.BlockerText = &blocker
	}

	e.session = session
	e.selectedMinutes = minutes
	e.remaining = minutes * 60
	e.interruptions = 0
	e.state = model.StateRunning
	e.startTickingLocked()

	snapshot := *session
	e.mu.Unlock()

	if err := e.store.Create(ctx, session); err != nil {
		log.Warn().Err(err).Str("owner", e.ownerKey).Str("sessionId", session.ID).
			Msg("session create not persisted")
	}

	e.emit(Event{Type: EventStarted, RemainingSeconds: snapshot.PlannedMinutes * 60, Session: &snapshot})
	return &snapshot, nil
}

// Interrupt records one interruption on the running block and persists the
// new count. The timer is unaffected.
func (e *Engine) Interrupt(ctx context.Context) (int, error) {
	e.mu.Lock()
	e.touchLocked()

	if e.state != model.StateRunning || e.session == nil {
		e.mu.Unlock()
		return 0, apperrors.InvalidState(string(e.state), "record interruption")
	}

	e.interruptions++
	count := e.interruptions
	e.session.InterruptionsCount = count
	id := e.session.ID
	remaining := e.remaining
	e.mu.Unlock()

	if err := e.store.Update(ctx, id, model.SessionUpdate{InterruptionsCount: &count}); err != nil {
		log.Warn().Err(err).Str("owner", e.ownerKey).Str("sessionId", id).
			Msg("interruption count not persisted")
	}

	e.emit(Event{Type: EventInterruption, RemainingSeconds: remaining, Interruptions: count})
	return count, nil
}

// RequestEnd moves a running block to the end check-in ahead of timer
// expiry. Remaining seconds are preserved for the cancel path.
func (e *Engine) RequestEnd() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	if e.state != model.StateRunning {
		return apperrors.InvalidState(string(e.state), "end block")
	}
	e.state = model.StateEndCheckin
	e.stopTickingLocked()
	return nil
}

// Resume is the end check-in cancel path: back to running, countdown
// continuing from the preserved remainder.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	if e.state != model.StateEndCheckin {
		return apperrors.InvalidState(string(e.state), "resume block")
	}
	e.state = model.StateRunning
	e.startTickingLocked()
	return nil
}

// Complete finishes the block: end timestamp, result, optional next step and
// the final interruption count are persisted, and the device's completed
// counter is bumped. The first completion ever on the device emits a one-time
// signup prompt event.
func (e *Engine) Complete(ctx context.Context, params EndParams) (*model.FocusSession, error) {
	e.mu.Lock()
	e.touchLocked()

	if e.state != model.StateEndCheckin || e.session == nil {
		e.mu.Unlock()
		return nil, apperrors.InvalidState(string(e.state), "complete block")
	}
	if !params.Result.Valid() {
		e.mu.Unlock()
		return nil, apperrors.InvalidInput("result", "must be done, partial or blocked")
	}

	now := e.clock.Now()
	result := params.Result
	count := e.interruptions

	e.session.EndedAt = &now
	e.session.Result = &result
	e.session.InterruptionsCount = count
	if params.NextStep != "" {
		next := params.NextStep
		e.session.NextStep = &next
	}

	upd := model.SessionUpdate{
		EndedAt:            &now,
		Result:             &result,
		NextStep:           e.session.NextStep,
		InterruptionsCount: &count,
	}

	id := e.session.ID
	e.state = model.StateSummary
	snapshot := *e.session
	e.mu.Unlock()

	if err := e.store.Update(ctx, id, upd); err != nil {
		log.Warn().Err(err).Str("owner", e.ownerKey).Str("sessionId", id).
			Msg("session completion not persisted")
	}

	completed := e.counter.Increment()

	e.emit(Event{Type: EventCompleted, Interruptions: count, Session: &snapshot})
	if completed == 1 {
		e.emit(Event{Type: EventSignupPrompt, Session: &snapshot})
	}

	return &snapshot, nil
}

// Reset leaves the summary and re-arms the timer at the selected duration.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touchLocked()

	if e.state != model.StateSummary {
		return apperrors.InvalidState(string(e.state), "reset")
	}
	e.state = model.StateIdle
	e.remaining = e.selectedMinutes * 60
	e.interruptions = 0
	e.session = nil
	return nil
}

// IdleSince reports whether the engine has sat at idle with no activity
// since before cutoff. The eviction sweep uses it to find engines whose
// owners are gone.
func (e *Engine) IdleSince(cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == model.StateIdle && e.lastActive.Before(cutoff)
}

// Close tears the engine down regardless of state: countdown stopped, event
// stream closed. Calls racing an eviction still return normally; only their
// events are dropped.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTickingLocked()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
}

func (e *Engine) touchLocked() {
	e.lastActive = e.clock.Now()
}

func (e *Engine) startTickingLocked() {
	stop := make(chan struct{})
	e.stopTick = stop
	go e.run(stop)
}

func (e *Engine) stopTickingLocked() {
	if e.stopTick != nil {
		close(e.stopTick)
		e.stopTick = nil
	}
}

func (e *Engine) run(stop chan struct{}) {
	ticker := e.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			if done := e.tick(stop); done {
				return
			}
		case <-stop:
			return
		}
	}
}

// tick decrements the countdown by one second. Reaching zero auto-transitions
// to the end check-in with remaining clamped at 0.
func (e *Engine) tick(stop chan struct{}) bool {
	e.mu.Lock()

	// A transition away from running may have raced this tick.
	if e.state != model.StateRunning || e.stopTick != stop {
		e.mu.Unlock()
		return true
	}

	e.remaining--
	if e.remaining > 0 {
		e.mu.Unlock()
		return false
	}

	e.remaining = 0
	e.state = model.StateEndCheckin
	e.stopTick = nil
	var snapshot *model.FocusSession
	if e.session != nil {
		snap := *e.session
		snapshot = &snap
	}
	interruptions := e.interruptions
	e.mu.Unlock()

	log.Info().Str("owner", e.ownerKey).Msg("focus block timer expired")
	e.emit(Event{Type: EventExpired, Interruptions: interruptions, Session: snapshot})
	return true
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}
