package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/focusms/server-go/internal/errors"
	"github.com/focusms/server-go/internal/model"
)

// fakeClock feeds ticks by hand. All tickers share one unbuffered channel, so
// a send only completes once the countdown goroutine has consumed it.
type fakeClock struct {
	now   time.Time
	ticks chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, ticks: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	return &fakeTicker{ch: c.ticks}
}

func (c *fakeClock) tick(n int) {
	for i := 0; i < n; i++ {
		c.ticks <- c.now
	}
}

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               {}

// fakeStore records persistence calls and can be told to fail.
type fakeStore struct {
	mu      sync.Mutex
	created []model.FocusSession
	updates map[string][]model.SessionUpdate
	fail    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{updates: make(map[string][]model.SessionUpdate)}
}

func (s *fakeStore) Create(ctx context.Context, session *model.FocusSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.created = append(s.created, *session)
	return nil
}

func (s *fakeStore) Update(ctx context.Context, id string, upd model.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.updates[id] = append(s.updates[id], upd)
	return nil
}

func (s *fakeStore) updatesFor(id string) []model.SessionUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[id]
}

type fakeCounter struct {
	mu    sync.Mutex
	count int
}

func (c *fakeCounter) Increment() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return c.count
}

func testEngine(t *testing.T) (*Engine, *fakeStore, *fakeCounter, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC))
	store := newFakeStore()
	counter := &fakeCounter{}
	newID := func(now time.Time) string { return "session-1" }
	e := NewEngine("device:test", store, counter, clock, newID, 50)
	t.Cleanup(e.Close)
	return e, store, counter, clock
}

func waitFor(t *testing.T, e *Engine, typ EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-e.Events():
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func TestEngineLifecycle(t *testing.T) {
	e, store, counter, clock := testEngine(t)
	ctx := context.Background()

	require.NoError(t, e.BeginCheckin())

	session, err := e.Start(ctx, StartParams{Outcome: "Write report draft", PlannedMinutes: 1})
	require.NoError(t, err)
	assert.Equal(t, "session-1", session.ID)
	assert.Equal(t, clock.Now(), session.StartedAt)
	assert.Equal(t, 1, session.PlannedMinutes)
	assert.Nil(t, session.EndedAt)

	started := waitFor(t, e, EventStarted)
	assert.Equal(t, 60, started.RemainingSeconds)

	st := e.Status()
	assert.Equal(t, model.StateRunning, st.State)
	assert.Equal(t, 60, st.RemainingSeconds)
	require.Len(t, store.created, 1)

	count, err := e.Interrupt(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	waitFor(t, e, EventInterruption)

	// Run the full minute down; expiry moves the block to the end check-in.
	clock.tick(60)
	expired := waitFor(t, e, EventExpired)
	assert.Equal(t, 1, expired.Interruptions)

	st = e.Status()
	assert.Equal(t, model.StateEndCheckin, st.State)
	assert.Equal(t, 0, st.RemainingSeconds)
	assert.Equal(t, 1, st.Interruptions)

	done, err := e.Complete(ctx, EndParams{Result: model.ResultDone, NextStep: "Send for review"})
	require.NoError(t, err)
	require.NotNil(t, done.EndedAt)
	assert.Equal(t, clock.Now(), *done.EndedAt)
	require.NotNil(t, done.Result)
	assert.Equal(t, model.ResultDone, *done.Result)
	require.NotNil(t, done.NextStep)
	assert.Equal(t, "Send for review", *done.NextStep)
	assert.Equal(t, 1, done.InterruptionsCount)
	assert.Equal(t, 1, counter.count)

	waitFor(t, e, EventCompleted)

	updates := store.updatesFor("session-1")
	require.NotEmpty(t, updates)
	final := updates[len(updates)-1]
	require.NotNil(t, final.EndedAt)
	require.NotNil(t, final.Result)

	require.NoError(t, e.Reset())
	st = e.Status()
	assert.Equal(t, model.StateIdle, st.State)
	assert.Equal(t, 50*60, st.RemainingSeconds)
	assert.Equal(t, 0, st.Interruptions)
	assert.Nil(t, st.Session)
}

func TestEngineSignupPrompt(t *testing.T) {
	e, _, _, clock := testEngine(t)
	ctx := context.Background()

	finish := func() {
		require.NoError(t, e.BeginCheckin())
		_, err := e.Start(ctx, StartParams{Outcome: "task", PlannedMinutes: 1})
		require.NoError(t, err)
		clock.tick(60)
		waitFor(t, e, EventExpired)
		_, err = e.Complete(ctx, EndParams{Result: model.ResultDone})
		require.NoError(t, err)
		waitFor(t, e, EventCompleted)
		require.NoError(t, e.Reset())
	}

	// First completion on the device prompts for signup, later ones stay quiet.
	finish()
	waitFor(t, e, EventSignupPrompt)

	finish()
	select {
	case ev := <-e.Events():
		assert.NotEqual(t, EventSignupPrompt, ev.Type)
	default:
	}
}

func TestEngineEndAndResume(t *testing.T) {
	e, _, _, clock := testEngine(t)
	ctx := context.Background()

	require.NoError(t, e.BeginCheckin())
	_, err := e.Start(ctx, StartParams{Outcome: "task", PlannedMinutes: 1})
	require.NoError(t, err)

	clock.tick(10)
	require.Eventually(t, func() bool {
		return e.Status().RemainingSeconds == 50
	}, time.Second, time.Millisecond)

	require.NoError(t, e.RequestEnd())
	st := e.Status()
	assert.Equal(t, model.StateEndCheckin, st.State)
	assert.Equal(t, 50, st.RemainingSeconds)

	// Cancelling the end check-in picks the countdown back up where it was.
	require.NoError(t, e.Resume())
	require.Eventually(t, func() bool {
		select {
		case clock.ticks <- clock.now:
		default:
		}
		return e.Status().RemainingSeconds < 50
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.StateRunning, e.Status().State)
}

func TestEngineInterruptCounts(t *testing.T) {
	e, store, _, _ := testEngine(t)
	ctx := context.Background()

	require.NoError(t, e.BeginCheckin())
	_, err := e.Start(ctx, StartParams{Outcome: "task", PlannedMinutes: 1})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		count, err := e.Interrupt(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	// Every interruption persists the running total.
	updates := store.updatesFor("session-1")
	require.Len(t, updates, 3)
	for i, upd := range updates {
		require.NotNil(t, upd.InterruptionsCount)
		assert.Equal(t, i+1, *upd.InterruptionsCount)
	}
}

func TestEngineInvalidTransitions(t *testing.T) {
	e, _, _, _ := testEngine(t)
	ctx := context.Background()

	assertInvalid := func(err error) {
		t.Helper()
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidState, apperrors.GetCode(err))
	}

	t.Run("start requires a check-in", func(t *testing.T) {
		_, err := e.Start(ctx, StartParams{Outcome: "task"})
		assertInvalid(err)
	})

	t.Run("interrupt requires a running block", func(t *testing.T) {
		_, err := e.Interrupt(ctx)
		assertInvalid(err)
	})

	t.Run("end requires a running block", func(t *testing.T) {
		assertInvalid(e.RequestEnd())
	})

	t.Run("resume requires an end check-in", func(t *testing.T) {
		assertInvalid(e.Resume())
	})

	t.Run("complete requires an end check-in", func(t *testing.T) {
		_, err := e.Complete(ctx, EndParams{Result: model.ResultDone})
		assertInvalid(err)
	})

	t.Run("reset requires a summary", func(t *testing.T) {
		assertInvalid(e.Reset())
	})

	t.Run("cancel requires a check-in", func(t *testing.T) {
		assertInvalid(e.CancelCheckin())
	})
}

func TestEngineStartValidation(t *testing.T) {
	e, _, _, _ := testEngine(t)
	ctx := context.Background()

	require.NoError(t, e.BeginCheckin())

	t.Run("outcome is required", func(t *testing.T) {
		_, err := e.Start(ctx, StartParams{})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})

	t.Run("falls back to the selected duration", func(t *testing.T) {
		session, err := e.Start(ctx, StartParams{Outcome: "task"})
		require.NoError(t, err)
		assert.Equal(t, 50, session.PlannedMinutes)
	})
}

func TestEngineSelectDuration(t *testing.T) {
	e, _, _, _ := testEngine(t)

	t.Run("sets duration and re-arms the timer", func(t *testing.T) {
		require.NoError(t, e.SelectDuration(90))
		st := e.Status()
		assert.Equal(t, 90, st.SelectedMinutes)
		assert.Equal(t, 90*60, st.RemainingSeconds)
	})

	t.Run("rejects non-positive minutes", func(t *testing.T) {
		err := e.SelectDuration(0)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})

	t.Run("rejected outside idle", func(t *testing.T) {
		require.NoError(t, e.BeginCheckin())
		err := e.SelectDuration(60)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidState, apperrors.GetCode(err))
	})
}

func TestEngineCancelCheckin(t *testing.T) {
	e, store, _, _ := testEngine(t)

	require.NoError(t, e.BeginCheckin())
	require.NoError(t, e.CancelCheckin())

	st := e.Status()
	assert.Equal(t, model.StateIdle, st.State)
	assert.Equal(t, 50*60, st.RemainingSeconds)
	assert.Empty(t, store.created)
}

func TestEngineSurvivesStoreFailure(t *testing.T) {
	e, store, counter, clock := testEngine(t)
	ctx := context.Background()
	store.fail = true

	require.NoError(t, e.BeginCheckin())
	session, err := e.Start(ctx, StartParams{Outcome: "task", PlannedMinutes: 1})
	require.NoError(t, err)
	assert.NotNil(t, session)

	_, err = e.Interrupt(ctx)
	require.NoError(t, err)

	clock.tick(60)
	waitFor(t, e, EventExpired)

	done, err := e.Complete(ctx, EndParams{Result: model.ResultPartial})
	require.NoError(t, err)
	assert.NotNil(t, done.EndedAt)
	assert.Equal(t, 1, counter.count)
}

func TestEngineClose(t *testing.T) {
	t.Run("close ends the event stream", func(t *testing.T) {
		e, _, _, _ := testEngine(t)
		e.Close()

		_, open := <-e.Events()
		assert.False(t, open)
	})

	t.Run("calls racing a close drop their events without panicking", func(t *testing.T) {
		e, store, _, _ := testEngine(t)
		e.Close()

		require.NoError(t, e.BeginCheckin())
		_, err := e.Start(context.Background(), StartParams{Outcome: "task", PlannedMinutes: 1})
		require.NoError(t, err)
		assert.Len(t, store.created, 1)

		// Closing twice is a no-op.
		e.Close()
	})
}

func TestEngineIdleSince(t *testing.T) {
	e, _, _, clock := testEngine(t)
	cutoff := clock.Now().Add(time.Second)

	assert.True(t, e.IdleSince(cutoff))
	assert.False(t, e.IdleSince(clock.Now()))

	// Any state but idle keeps the engine alive.
	require.NoError(t, e.BeginCheckin())
	assert.False(t, e.IdleSince(cutoff))
}
