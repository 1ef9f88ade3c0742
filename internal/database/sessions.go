package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MeetingSession is a durable meeting-session record (C6). At most one
// row per room_id may have is_active=true at any time, enforced by a
// partial unique index on (room_id) WHERE is_active.
type MeetingSession struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"roomId"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	IsActive  bool       `json:"isActive"`
}

// CreateMeetingSession opens a new session for a room.
func CreateMeetingSession(roomID string) (*MeetingSession, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO meeting_sessions (id, room_id, started_at, is_active)
		VALUES ($1, $2, NOW(), true)
		RETURNING id, room_id, started_at, ended_at, is_active
	`

	var s MeetingSession
	var endedAt sql.NullTime
	err := DB.QueryRow(query, id, roomID).Scan(&s.ID, &s.RoomID, &s.StartedAt, &endedAt, &s.IsActive)
	if err != nil {
		return nil, fmt.Errorf("failed to create meeting session: %w", err)
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	return &s, nil
}

// GetActiveMeetingSession returns the open session for a room, if any.
func GetActiveMeetingSession(roomID string) (*MeetingSession, error) {
	query := `
		SELECT id, room_id, started_at, ended_at, is_active
		FROM meeting_sessions
		WHERE room_id = $1 AND is_active = true
	`

	var s MeetingSession
	var endedAt sql.NullTime
	err := DB.QueryRow(query, roomID).Scan(&s.ID, &s.RoomID, &s.StartedAt, &endedAt, &s.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active meeting session: %w", err)
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	return &s, nil
}

// EndMeetingSession closes a session.
func EndMeetingSession(sessionID string) error {
	query := `
		UPDATE meeting_sessions
		SET ended_at = NOW(), is_active = false
		WHERE id = $1
	`
	if _, err := DB.Exec(query, sessionID); err != nil {
		return fmt.Errorf("failed to end meeting session: %w", err)
	}
	return nil
}

// GetMeetingSessionByID retrieves a session by id, active or not.
func GetMeetingSessionByID(sessionID string) (*MeetingSession, error) {
	query := `
		SELECT id, room_id, started_at, ended_at, is_active
		FROM meeting_sessions
		WHERE id = $1
	`

	var s MeetingSession
	var endedAt sql.NullTime
	err := DB.QueryRow(query, sessionID).Scan(&s.ID, &s.RoomID, &s.StartedAt, &endedAt, &s.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting session: %w", err)
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	return &s, nil
}
