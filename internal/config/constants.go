package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts. No write timeout: the event stream stays open
// indefinitely, so per-request deadlines apply only to the JSON routes.
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const (
	CleanupJobInterval  = 1 * time.Hour
	EngineEvictInterval = 10 * time.Minute
)

// Engines idle longer than this are dropped on the next eviction sweep.
const EngineIdleTTL = 1 * time.Hour

// Duration presets offered to the UI. Not a closed set: any positive
// planned_minutes up to MaxBlockMinutes is accepted.
var DurationPresets = []int{50, 60, 90}

const MaxBlockMinutes = 480

// Maximum request body size for the JSON API.
const MaxBodyBytes = 1 << 20
