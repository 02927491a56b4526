package timer

import "sync"

// Manager holds at most one engine per owner: exactly one focus block is
// current at a time per device or user.
type Manager struct {
	mu      sync.Mutex
	engines map[string]*Engine
}

func NewManager() *Manager {
	return &Manager{
		engines: make(map[string]*Engine),
	}
}

// GetOrCreate returns the owner's engine, constructing it with build on
// first use.
func (m *Manager) GetOrCreate(ownerKey string, build func() *Engine) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.engines[ownerKey]; ok {
		return e
	}
	e := build()
	m.engines[ownerKey] = e
	return e
}

func (m *Manager) Get(ownerKey string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.engines[ownerKey]
	return e, ok
}

// Evict closes and drops every engine shouldEvict reports true for,
// returning the number removed. Closing ends the engine's event stream, so
// its consumers unwind too.
func (m *Manager) Evict(shouldEvict func(*Engine) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.engines {
		if shouldEvict(e) {
			e.Close()
			delete(m.engines, key)
			removed++
		}
	}
	return removed
}
