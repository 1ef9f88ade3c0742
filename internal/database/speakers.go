package database

import (
	"database/sql"
	"fmt"
)

// SetSpeakerName records the display name a participant was using the
// last time they joined a room, so a transcript read after they
// disconnect can still show a name instead of a bare user id.
func SetSpeakerName(roomID, speakerID, speakerName string) error {
	query := `
		INSERT INTO speaker_mappings (room_id, speaker_id, speaker_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, speaker_id)
		DO UPDATE SET speaker_name = EXCLUDED.speaker_name
	`
	if _, err := DB.Exec(query, roomID, speakerID, speakerName); err != nil {
		return fmt.Errorf("failed to set speaker name: %w", err)
	}
	return nil
}

// GetSpeakerMappings retrieves every known speaker_id -> speaker_name
// mapping for a room, for populating a transcript read.
func GetSpeakerMappings(roomID string) (map[string]string, error) {
	query := `SELECT speaker_id, speaker_name FROM speaker_mappings WHERE room_id = $1`

	rows, err := DB.Query(query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get speaker mappings: %w", err)
	}
	defer rows.Close()

	mappings := make(map[string]string)
	for rows.Next() {
		var speakerID, speakerName string
		if err := rows.Scan(&speakerID, &speakerName); err != nil {
			return nil, fmt.Errorf("failed to scan speaker mapping: %w", err)
		}
		mappings[speakerID] = speakerName
	}
	return mappings, nil
}

// GetSpeakerName retrieves the name for one speaker, falling back to
// the speaker id itself when no mapping has been recorded.
func GetSpeakerName(roomID, speakerID string) (string, error) {
	query := `SELECT speaker_name FROM speaker_mappings WHERE room_id = $1 AND speaker_id = $2`

	var speakerName string
	err := DB.QueryRow(query, roomID, speakerID).Scan(&speakerName)
	if err == sql.ErrNoRows {
		return speakerID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get speaker name: %w", err)
	}
	return speakerName, nil
}
