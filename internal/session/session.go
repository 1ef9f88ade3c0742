// Package session implements the Session Lifecycle (C6): a durable
// meeting_sessions record that opens on a room's first accepted
// utterance and closes when its last participant leaves. Rewritten
// from the teacher's original rolling-window ASR polling loop, which
// served a different, now-superseded, streaming-transcript design; the
// one-writer-per-resource idea survives as one mutex per room id.
package session

import (
	"fmt"
	"sync"

	"realtime-caption-translator/internal/database"
)

// Manager serializes get_or_create_active_session and end_session per
// room so two near-simultaneous first utterances in the same room
// never race into two open sessions.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager constructs an empty session manager.
func NewManager() *Manager {
	return &Manager{locks: make(map[string]*sync.Mutex)}
}

func (m *Manager) roomLock(roomID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[roomID] = l
	}
	return l
}

// GetOrCreateActive returns the room's currently open session, creating
// one if none exists. Safe under concurrent callers for the same room;
// the database layer additionally enforces at most one active session
// per room via a partial unique index.
func (m *Manager) GetOrCreateActive(roomID string) (*database.MeetingSession, error) {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := database.GetActiveMeetingSession(roomID)
	if err != nil {
		return nil, fmt.Errorf("session: lookup active session for room %s: %w", roomID, err)
	}
	if existing != nil {
		return existing, nil
	}

	created, err := database.CreateMeetingSession(roomID)
	if err != nil {
		return nil, fmt.Errorf("session: create session for room %s: %w", roomID, err)
	}
	return created, nil
}

// EndActive closes the room's open session, if any. Called only when
// the room's participant count drops to zero.
func (m *Manager) EndActive(roomID string) error {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := database.GetActiveMeetingSession(roomID)
	if err != nil {
		return fmt.Errorf("session: lookup active session for room %s: %w", roomID, err)
	}
	if existing == nil {
		return nil
	}
	if err := database.EndMeetingSession(existing.ID); err != nil {
		return fmt.Errorf("session: end session %s: %w", existing.ID, err)
	}
	return nil
}

// Forget drops the per-room lock once a room is disposed, so the lock
// table does not grow unbounded across the server's lifetime.
func (m *Manager) Forget(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, roomID)
}
