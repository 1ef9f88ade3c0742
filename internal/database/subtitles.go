package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Subtitle is a durable subtitle row (C9). translations augments over
// time as background fills complete; existing entries never change.
type Subtitle struct {
	ID               string            `json:"id"`
	RoomID           string            `json:"roomId"`
	SessionID        *string           `json:"sessionId,omitempty"`
	SpeakerID        string            `json:"speakerId"`
	OriginalText     string            `json:"originalText"`
	OriginalLanguage string            `json:"originalLanguage"`
	Translations     map[string]string `json:"translations"`
	Timestamp        time.Time         `json:"timestamp"`
	AudioObjectKey   *string           `json:"audioObjectKey,omitempty"`
}

// CreateSubtitle persists a new subtitle row. DB errors are the
// caller's to log, not propagate to the live pipeline (step 10 of the
// orchestrator treats persistence as best-effort).
func CreateSubtitle(roomID string, sessionID *string, speakerID, originalText, originalLanguage string, translations map[string]string, audioObjectKey *string) (*Subtitle, error) {
	if translations == nil {
		translations = map[string]string{}
	}
	payload, err := json.Marshal(translations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subtitle translations: %w", err)
	}

	id := uuid.NewString()
	query := `
		INSERT INTO subtitles (id, room_id, session_id, speaker_id, original_text, original_language, translations, timestamp, audio_object_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), $8)
		RETURNING id, room_id, session_id, speaker_id, original_text, original_language, translations, timestamp, audio_object_key
	`

	var s Subtitle
	var sessionIDCol sql.NullString
	var translationsBytes []byte
	var audioKeyCol sql.NullString
	err = DB.QueryRow(query, id, roomID, sessionID, speakerID, originalText, originalLanguage, payload, audioObjectKey).Scan(
		&s.ID, &s.RoomID, &sessionIDCol, &s.SpeakerID, &s.OriginalText, &s.OriginalLanguage,
		&translationsBytes, &s.Timestamp, &audioKeyCol,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create subtitle: %w", err)
	}
	if sessionIDCol.Valid {
		s.SessionID = &sessionIDCol.String
	}
	if audioKeyCol.Valid {
		s.AudioObjectKey = &audioKeyCol.String
	}
	if err := json.Unmarshal(translationsBytes, &s.Translations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subtitle translations: %w", err)
	}
	return &s, nil
}

// AugmentTranslations merges additional language entries into a
// subtitle's translations column. Read-modify-write is acceptable here:
// background fills for one subtitle are rare and never overwrite an
// existing language's entry.
func AugmentTranslations(subtitleID string, additional map[string]string) error {
	if len(additional) == 0 {
		return nil
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin subtitle translation update: %w", err)
	}
	defer tx.Rollback()

	var existingBytes []byte
	err = tx.QueryRow(`SELECT translations FROM subtitles WHERE id = $1 FOR UPDATE`, subtitleID).Scan(&existingBytes)
	if err == sql.ErrNoRows {
		return fmt.Errorf("subtitle %s not found", subtitleID)
	}
	if err != nil {
		return fmt.Errorf("failed to read subtitle translations: %w", err)
	}

	existing := map[string]string{}
	if len(existingBytes) > 0 {
		if err := json.Unmarshal(existingBytes, &existing); err != nil {
			return fmt.Errorf("failed to unmarshal subtitle translations: %w", err)
		}
	}
	for lang, text := range additional {
		if _, ok := existing[lang]; !ok {
			existing[lang] = text
		}
	}

	merged, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to marshal subtitle translations: %w", err)
	}
	if _, err := tx.Exec(`UPDATE subtitles SET translations = $1 WHERE id = $2`, merged, subtitleID); err != nil {
		return fmt.Errorf("failed to update subtitle translations: %w", err)
	}
	return tx.Commit()
}

// GetSubtitleByID retrieves one subtitle row.
func GetSubtitleByID(subtitleID string) (*Subtitle, error) {
	query := `
		SELECT id, room_id, session_id, speaker_id, original_text, original_language, translations, timestamp, audio_object_key
		FROM subtitles
		WHERE id = $1
	`
	return scanSubtitle(DB.QueryRow(query, subtitleID))
}

// ListTranscript returns a room's subtitles in chronological order,
// optionally scoped to one session.
func ListTranscript(roomID string, sessionID *string) ([]Subtitle, error) {
	var rows *sql.Rows
	var err error
	if sessionID != nil {
		rows, err = DB.Query(`
			SELECT id, room_id, session_id, speaker_id, original_text, original_language, translations, timestamp, audio_object_key
			FROM subtitles
			WHERE room_id = $1 AND session_id = $2
			ORDER BY timestamp ASC
		`, roomID, *sessionID)
	} else {
		rows, err = DB.Query(`
			SELECT id, room_id, session_id, speaker_id, original_text, original_language, translations, timestamp, audio_object_key
			FROM subtitles
			WHERE room_id = $1
			ORDER BY timestamp ASC
		`, roomID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list transcript: %w", err)
	}
	defer rows.Close()

	var out []Subtitle
	for rows.Next() {
		s, err := scanSubtitleRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubtitle(row rowScanner) (*Subtitle, error) {
	var s Subtitle
	var sessionIDCol sql.NullString
	var translationsBytes []byte
	var audioKeyCol sql.NullString
	err := row.Scan(&s.ID, &s.RoomID, &sessionIDCol, &s.SpeakerID, &s.OriginalText, &s.OriginalLanguage,
		&translationsBytes, &s.Timestamp, &audioKeyCol)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subtitle: %w", err)
	}
	if sessionIDCol.Valid {
		s.SessionID = &sessionIDCol.String
	}
	if audioKeyCol.Valid {
		s.AudioObjectKey = &audioKeyCol.String
	}
	s.Translations = map[string]string{}
	if len(translationsBytes) > 0 {
		if err := json.Unmarshal(translationsBytes, &s.Translations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subtitle translations: %w", err)
		}
	}
	return &s, nil
}

func scanSubtitleRow(rows *sql.Rows) (*Subtitle, error) {
	return scanSubtitle(rows)
}
