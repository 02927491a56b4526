package jobs

import (
	"time"

	"github.com/rs/zerolog/log"
)

type engineEvicter interface {
	EvictIdleEngines(maxIdle time.Duration) int
}

// EngineEvictor periodically drops lifecycle engines whose owners have gone
// quiet, keeping one-off device ids from accumulating engines and their
// event-forwarding goroutines for the process lifetime.
type EngineEvictor struct {
	sessions engineEvicter
	interval time.Duration
	maxIdle  time.Duration
	done     chan struct{}
}

func NewEngineEvictor(sessions engineEvicter, interval, maxIdle time.Duration) *EngineEvictor {
	return &EngineEvictor{
		sessions: sessions,
		interval: interval,
		maxIdle:  maxIdle,
		done:     make(chan struct{}),
	}
}

func (j *EngineEvictor) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("maxIdle", j.maxIdle).Msg("engine evictor started")
}

func (j *EngineEvictor) Stop() {
	close(j.done)
	log.Info().Msg("engine evictor stopped")
}

func (j *EngineEvictor) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sessions.EvictIdleEngines(j.maxIdle)
		}
	}
}
