package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// Room is the durable Room Policy row (§3). AllowedLanguages is stored
// as a comma-joined text column, in keeping with the teacher's
// preference for plain columns over array types elsewhere in this
// schema.
type Room struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	AllowedLanguages []string `json:"allowedLanguages"`
	DefaultAudioMode string   `json:"defaultAudioMode"`
	AllowModeSwitch  bool     `json:"allowModeSwitch"`
	IsPrivate        bool     `json:"isPrivate"`
	IsActive         bool     `json:"isActive"`
	CreatorID        string   `json:"creatorId"`
}

// CreateRoom persists a new room policy.
func CreateRoom(r Room) (*Room, error) {
	query := `
		INSERT INTO rooms (id, name, allowed_languages, default_audio_mode, allow_mode_switch, is_private, is_active, creator_id)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7)
		RETURNING id, name, allowed_languages, default_audio_mode, allow_mode_switch, is_private, is_active, creator_id
	`

	var out Room
	var langs string
	err := DB.QueryRow(query, r.ID, r.Name, strings.Join(r.AllowedLanguages, ","), r.DefaultAudioMode, r.AllowModeSwitch, r.IsPrivate, r.CreatorID).Scan(
		&out.ID, &out.Name, &langs, &out.DefaultAudioMode, &out.AllowModeSwitch, &out.IsPrivate, &out.IsActive, &out.CreatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	out.AllowedLanguages = splitLangs(langs)
	return &out, nil
}

// GetRoomByID retrieves a room policy by id.
func GetRoomByID(roomID string) (*Room, error) {
	query := `
		SELECT id, name, allowed_languages, default_audio_mode, allow_mode_switch, is_private, is_active, creator_id
		FROM rooms
		WHERE id = $1
	`

	var out Room
	var langs string
	err := DB.QueryRow(query, roomID).Scan(
		&out.ID, &out.Name, &langs, &out.DefaultAudioMode, &out.AllowModeSwitch, &out.IsPrivate, &out.IsActive, &out.CreatorID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	out.AllowedLanguages = splitLangs(langs)
	return &out, nil
}

func splitLangs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DeactivateRoom marks a room policy inactive.
func DeactivateRoom(roomID string) error {
	if _, err := DB.Exec(`UPDATE rooms SET is_active = false WHERE id = $1`, roomID); err != nil {
		return fmt.Errorf("failed to deactivate room: %w", err)
	}
	return nil
}
