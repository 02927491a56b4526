package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func managerEngine(clock Clock) *Engine {
	newID := func(now time.Time) string { return "session-1" }
	return NewEngine("device:test", newFakeStore(), &fakeCounter{}, clock, newID, 50)
}

func TestManager(t *testing.T) {
	clock := newFakeClock(time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC))

	t.Run("get or create caches per owner", func(t *testing.T) {
		m := NewManager()
		a := m.GetOrCreate("device:a", func() *Engine { return managerEngine(clock) })
		again := m.GetOrCreate("device:a", func() *Engine { return managerEngine(clock) })
		assert.Same(t, a, again)

		b := m.GetOrCreate("device:b", func() *Engine { return managerEngine(clock) })
		assert.NotSame(t, a, b)
	})

	t.Run("evict drops matching engines and closes them", func(t *testing.T) {
		m := NewManager()
		idle := m.GetOrCreate("device:idle", func() *Engine { return managerEngine(clock) })
		busy := m.GetOrCreate("device:busy", func() *Engine { return managerEngine(clock) })
		require.NoError(t, busy.BeginCheckin())
		t.Cleanup(busy.Close)

		cutoff := clock.Now().Add(time.Second)
		evicted := m.Evict(func(e *Engine) bool { return e.IdleSince(cutoff) })
		assert.Equal(t, 1, evicted)

		_, ok := m.Get("device:idle")
		assert.False(t, ok)
		_, ok = m.Get("device:busy")
		assert.True(t, ok)

		// The evicted engine's event stream is closed.
		_, open := <-idle.Events()
		assert.False(t, open)
	})
}
