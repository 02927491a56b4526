package model

import "time"

// Settings are per-device preferences, read on startup and written on change.
type Settings struct {
	DefaultDuration int  `json:"defaultDuration"`
	SoundEnabled    bool `json:"soundEnabled"`
}

func DefaultSettings(defaultMinutes int) Settings {
	return Settings{
		DefaultDuration: defaultMinutes,
		SoundEnabled:    true,
	}
}

// User is the identity slice this service consumes from the external auth
// system. Account management itself lives elsewhere.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
