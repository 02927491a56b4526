// Package metrics derives aggregate productivity statistics from a session
// collection. Pure computation: no I/O, no persisted aggregate state, and
// identical output whichever store the sessions came from.
package metrics

import (
	"fmt"
	"time"

	"github.com/focusms/server-go/internal/model"
)

type Metrics struct {
	TodayMinutes       int `json:"todayMinutes"`
	ThisWeekMinutes    int `json:"thisWeekMinutes"`
	BlocksCompleted    int `json:"blocksCompleted"`
	TodayBlocks        int `json:"todayBlocks"`
	ThisWeekBlocks     int `json:"thisWeekBlocks"`
	TotalInterruptions int `json:"totalInterruptions"`
	TodayInterruptions int `json:"todayInterruptions"`
	Streak             int `json:"streak"`
}

// Calculate aggregates completed sessions relative to now. Sessions still
// running or abandoned mid-block (no ended_at or no result) are excluded from
// every figure. Input order is irrelevant.
func Calculate(sessions []model.FocusSession, now time.Time) Metrics {
	var m Metrics
	weekStart := startOfWeek(now)

	for _, s := range sessions {
		if !s.Completed() {
			continue
		}

		m.BlocksCompleted++
		m.TotalInterruptions += s.InterruptionsCount

		if sameDay(s.StartedAt, now) {
			m.TodayBlocks++
			m.TodayMinutes += s.Minutes()
			m.TodayInterruptions += s.InterruptionsCount
		}
		if !s.StartedAt.Before(weekStart) {
			m.ThisWeekBlocks++
			m.ThisWeekMinutes += s.Minutes()
		}
	}

	m.Streak = streak(sessions, now)
	return m
}

// streak counts consecutive calendar days with at least one completed
// session, anchored at today or yesterday: a session-free today does not
// break the run as long as yesterday had one.
func streak(sessions []model.FocusSession, now time.Time) int {
	days := make(map[string]bool)
	for _, s := range sessions {
		if s.Completed() {
			days[dayKey(s.StartedAt)] = true
		}
	}
	if len(days) == 0 {
		return 0
	}

	check := now
	if !days[dayKey(check)] {
		check = check.AddDate(0, 0, -1)
		if !days[dayKey(check)] {
			return 0
		}
	}

	count := 0
	for days[dayKey(check)] {
		count++
		check = check.AddDate(0, 0, -1)
	}
	return count
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// startOfWeek is the most recent Sunday 00:00:00 in local time.
func startOfWeek(now time.Time) time.Time {
	d := now.AddDate(0, 0, -int(now.Weekday()))
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}

func dayKey(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d", t.Year(), int(t.Month()), t.Day())
}
