package model

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"
)

// FocusSession is one focus block attempt. Nullable columns are pointers so
// the JSON shape matches what the UI layer persisted historically: absent
// values serialize as null, never as zero values.
type FocusSession struct {
	ID                 string     `db:"id" json:"id"`
	UserID             *string    `db:"user_id" json:"-"`
	StartedAt          time.Time  `db:"started_at" json:"started_at"`
	EndedAt            *time.Time `db:"ended_at" json:"ended_at"`
	PlannedMinutes     int        `db:"planned_minutes" json:"planned_minutes"`
	Outcome            string     `db:"outcome" json:"outcome"`
	BlockerText        *string    `db:"blocker_text" json:"blocker_text"`
	Result             *Result    `db:"result" json:"result"`
	NextStep           *string    `db:"next_step" json:"next_step"`
	InterruptionsCount int        `db:"interruptions_count" json:"interruptions_count"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// SessionUpdate is a partial update applied to a stored session. Nil fields
// are left untouched.
type SessionUpdate struct {
	EndedAt            *time.Time
	Result             *Result
	NextStep           *string
	InterruptionsCount *int
}

// Completed reports whether the session finished with an end check-in.
// Sessions still running or abandoned mid-block are not completed.
func (s *FocusSession) Completed() bool {
	return s.EndedAt != nil && s.Result != nil
}

// Minutes is the rounded wall-clock length of a completed session.
// Returns 0 while the session is still running.
func (s *FocusSession) Minutes() int {
	if s.EndedAt == nil {
		return 0
	}
	return int(math.Round(float64(s.EndedAt.Sub(s.StartedAt).Milliseconds()) / 60000))
}

// Validate checks the session record schema: required fields present and the
// result, if set, inside the closed enum. Used to filter candidate records
// during migration.
func (s *FocusSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.StartedAt.IsZero() {
		return fmt.Errorf("started_at is required")
	}
	if s.PlannedMinutes <= 0 {
		return fmt.Errorf("planned_minutes must be positive")
	}
	if s.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if s.InterruptionsCount < 0 {
		return fmt.Errorf("interruptions_count must not be negative")
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if s.Result != nil && !s.Result.Valid() {
		return fmt.Errorf("result %q is not one of done/partial/blocked", *s.Result)
	}
	return nil
}

const localIDChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewLocalSessionID builds an id for a locally created session: globally
// unique via the creation timestamp plus a random suffix.
func NewLocalSessionID(now time.Time) string {
	suffix := make([]byte, 7)
	for i := range suffix {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(localIDChars))))
		suffix[i] = localIDChars[n.Int64()]
	}
	return fmt.Sprintf("local_%d_%s", now.UnixMilli(), suffix)
}
