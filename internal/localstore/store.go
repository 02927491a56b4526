// Package localstore is the on-device store backing anonymous use: sessions,
// settings and the completed-blocks counter, one JSON payload per logical
// key. Absent or unparseable payloads fall back to defaults, and when the
// data directory is unusable the store degrades to memory so the timer UI
// keeps working with storage disabled.
package localstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/focusms/server-go/internal/model"
)

const (
	sessionsKey        = "fms_v1_sessions"
	settingsKey        = "fms_v1_settings"
	completedBlocksKey = "fms_v1_completed_blocks"
)

type Store struct {
	mu             sync.Mutex
	dir            string // empty when running memory-only
	mem            map[string][]byte
	defaultMinutes int
}

func New(dir string, defaultMinutes int) *Store {
	s := &Store{
		mem:            make(map[string][]byte),
		defaultMinutes: defaultMinutes,
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("local store directory unusable, falling back to memory")
		return s
	}
	s.dir = dir
	return s
}

// InMemory returns a store that never touches disk. Used in tests and as the
// degraded mode when device storage is unavailable.
func InMemory(defaultMinutes int) *Store {
	return &Store{
		mem:            make(map[string][]byte),
		defaultMinutes: defaultMinutes,
	}
}

func (s *Store) Sessions(deviceID string) []model.FocusSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.read(deviceID, sessionsKey)
	if !ok {
		return []model.FocusSession{}
	}
	var sessions []model.FocusSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		log.Warn().Err(err).Str("deviceId", deviceID).Msg("corrupt local session payload, resetting to empty")
		return []model.FocusSession{}
	}
	return sessions
}

func (s *Store) SaveSessions(deviceID string, sessions []model.FocusSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(sessions)
	if err != nil {
		log.Warn().Err(err).Msg("marshal local sessions")
		return
	}
	s.write(deviceID, sessionsKey, data)
}

func (s *Store) AddSession(deviceID string, session model.FocusSession) {
	sessions := s.Sessions(deviceID)
	sessions = append(sessions, session)
	s.SaveSessions(deviceID, sessions)
}

// UpdateSession applies a partial update to the stored session with the given
// id. A missing id is a no-op, not an error.
func (s *Store) UpdateSession(deviceID, id string, upd model.SessionUpdate) {
	sessions := s.Sessions(deviceID)
	for i := range sessions {
		if sessions[i].ID != id {
			continue
		}
		if upd.EndedAt != nil {
			sessions[i].EndedAt = upd.EndedAt
		}
		if upd.Result != nil {
			sessions[i].Result = upd.Result
		}
		if upd.NextStep != nil {
			sessions[i].NextStep = upd.NextStep
		}
		if upd.InterruptionsCount != nil {
			sessions[i].InterruptionsCount = *upd.InterruptionsCount
		}
		s.SaveSessions(deviceID, sessions)
		return
	}
}

func (s *Store) ClearSessions(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(deviceID, sessionsKey)
}

func (s *Store) Settings(deviceID string) model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := model.DefaultSettings(s.defaultMinutes)
	data, ok := s.read(deviceID, settingsKey)
	if !ok {
		return defaults
	}
	var settings model.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		log.Warn().Err(err).Str("deviceId", deviceID).Msg("corrupt local settings payload, using defaults")
		return defaults
	}
	if settings.DefaultDuration <= 0 {
		settings.DefaultDuration = defaults.DefaultDuration
	}
	return settings
}

func (s *Store) SaveSettings(deviceID string, settings model.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(settings)
	if err != nil {
		log.Warn().Err(err).Msg("marshal local settings")
		return
	}
	s.write(deviceID, settingsKey, data)
}

func (s *Store) CompletedBlocks(deviceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completedBlocksLocked(deviceID)
}

// IncrementCompletedBlocks bumps the per-device counter and returns the new
// value. The counter only ever grows.
func (s *Store) IncrementCompletedBlocks(deviceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.completedBlocksLocked(deviceID) + 1
	s.write(deviceID, completedBlocksKey, []byte(strconv.Itoa(count)))
	return count
}

func (s *Store) completedBlocksLocked(deviceID string) int {
	data, ok := s.read(deviceID, completedBlocksKey)
	if !ok {
		return 0
	}
	count, err := strconv.Atoi(string(data))
	if err != nil || count < 0 {
		return 0
	}
	return count
}

func (s *Store) memKey(deviceID, key string) string {
	return deviceID + "/" + key
}

// diskSafe reports whether the device id can be used as a path segment
// without leaving the data dir. Unsafe ids are served from memory only;
// identity validation should have rejected them long before this.
func diskSafe(deviceID string) bool {
	if deviceID == "" || deviceID == "." || deviceID == ".." {
		return false
	}
	return !strings.ContainsAny(deviceID, `/\`)
}

func (s *Store) path(deviceID, key string) string {
	return filepath.Join(s.dir, deviceID, key+".json")
}

func (s *Store) read(deviceID, key string) ([]byte, bool) {
	if data, ok := s.mem[s.memKey(deviceID, key)]; ok {
		return data, true
	}
	if s.dir == "" || !diskSafe(deviceID) {
		return nil, false
	}
	data, err := os.ReadFile(s.path(deviceID, key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *Store) write(deviceID, key string, data []byte) {
	if s.dir == "" || !diskSafe(deviceID) {
		s.mem[s.memKey(deviceID, key)] = data
		return
	}
	dir := filepath.Join(s.dir, deviceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("local store write failed, keeping value in memory")
		s.mem[s.memKey(deviceID, key)] = data
		return
	}
	path := s.path(deviceID, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err == nil {
		if err := os.Rename(tmp, path); err == nil {
			delete(s.mem, s.memKey(deviceID, key))
			return
		}
	}
	log.Warn().Str("path", path).Msg("local store write failed, keeping value in memory")
	s.mem[s.memKey(deviceID, key)] = data
}

func (s *Store) remove(deviceID, key string) {
	delete(s.mem, s.memKey(deviceID, key))
	if s.dir != "" && diskSafe(deviceID) {
		_ = os.Remove(s.path(deviceID, key))
	}
}
