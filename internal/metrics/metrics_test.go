package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/focusms/server-go/internal/model"
)

// Wednesday afternoon; the current week started Sunday March 8 00:00.
var now = time.Date(2026, time.March, 11, 15, 0, 0, 0, time.UTC)

func completedSession(start time.Time, length time.Duration, interruptions int) model.FocusSession {
	end := start.Add(length)
	result := model.ResultDone
	return model.FocusSession{
		ID:                 "s-" + start.Format("20060102150405"),
		StartedAt:          start,
		EndedAt:            &end,
		PlannedMinutes:     int(length / time.Minute),
		Outcome:            "write tests",
		Result:             &result,
		InterruptionsCount: interruptions,
		CreatedAt:          start,
	}
}

func TestCalculate(t *testing.T) {
	t.Run("empty input yields zero metrics", func(t *testing.T) {
		m := Calculate(nil, now)
		assert.Equal(t, Metrics{}, m)
	})

	t.Run("sessions without an end or result are excluded", func(t *testing.T) {
		running := model.FocusSession{
			ID:             "running",
			StartedAt:      now.Add(-30 * time.Minute),
			PlannedMinutes: 50,
			Outcome:        "draft",
			CreatedAt:      now.Add(-30 * time.Minute),
		}
		abandoned := completedSession(now.Add(-2*time.Hour), 50*time.Minute, 3)
		abandoned.Result = nil

		m := Calculate([]model.FocusSession{running, abandoned}, now)
		assert.Equal(t, Metrics{}, m)
	})

	t.Run("today figures count only today's sessions", func(t *testing.T) {
		sessions := []model.FocusSession{
			completedSession(now.Add(-3*time.Hour), 50*time.Minute, 2),
			completedSession(now.AddDate(0, 0, -1), 60*time.Minute, 1),
		}

		m := Calculate(sessions, now)
		assert.Equal(t, 1, m.TodayBlocks)
		assert.Equal(t, 50, m.TodayMinutes)
		assert.Equal(t, 2, m.TodayInterruptions)
		assert.Equal(t, 2, m.BlocksCompleted)
		assert.Equal(t, 3, m.TotalInterruptions)
	})

	t.Run("minutes are rounded from wall-clock length", func(t *testing.T) {
		sessions := []model.FocusSession{
			completedSession(now.Add(-2*time.Hour), 25*time.Minute+12*time.Second, 0),
			completedSession(now.Add(-4*time.Hour), 50*time.Minute+30*time.Second, 0),
		}

		m := Calculate(sessions, now)
		assert.Equal(t, 25+51, m.TodayMinutes)
	})

	t.Run("week window opens at Sunday midnight", func(t *testing.T) {
		sunday := time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC)
		saturday := sunday.Add(-time.Second)

		m := Calculate([]model.FocusSession{
			completedSession(sunday, 50*time.Minute, 0),
			completedSession(saturday, 50*time.Minute, 0),
		}, now)

		assert.Equal(t, 1, m.ThisWeekBlocks)
		assert.Equal(t, 50, m.ThisWeekMinutes)
		assert.Equal(t, 2, m.BlocksCompleted)
	})
}

func TestStreak(t *testing.T) {
	day := func(offset int) model.FocusSession {
		return completedSession(now.AddDate(0, 0, offset).Add(-6*time.Hour), 50*time.Minute, 0)
	}

	t.Run("no completed sessions means no streak", func(t *testing.T) {
		assert.Equal(t, 0, Calculate(nil, now).Streak)
	})

	t.Run("counts consecutive days ending today", func(t *testing.T) {
		m := Calculate([]model.FocusSession{day(-2), day(-1), day(0)}, now)
		assert.Equal(t, 3, m.Streak)
	})

	t.Run("a session-free today keeps yesterday's run alive", func(t *testing.T) {
		m := Calculate([]model.FocusSession{day(-2), day(-1)}, now)
		assert.Equal(t, 2, m.Streak)
	})

	t.Run("two session-free days break the run", func(t *testing.T) {
		m := Calculate([]model.FocusSession{day(-3), day(-2)}, now)
		assert.Equal(t, 0, m.Streak)
	})

	t.Run("a gap stops the count", func(t *testing.T) {
		m := Calculate([]model.FocusSession{day(-3), day(-1), day(0)}, now)
		assert.Equal(t, 2, m.Streak)
	})

	t.Run("multiple sessions on one day count once", func(t *testing.T) {
		m := Calculate([]model.FocusSession{day(0), day(0), day(-1)}, now)
		assert.Equal(t, 2, m.Streak)
	})
}
