// Package transcript implements the Transcript Writer/Reader (C9):
// durable persistence of finalized subtitle rows and a lagging,
// read-only query API over them. Grounded on the teacher's
// meeting-transcript-snapshot read/write pair in
// internal/database/models.go, generalized from whole-transcript
// blobs to individually queryable subtitle rows.
package transcript

import (
	"fmt"

	"realtime-caption-translator/internal/database"
)

// Entry is one transcript line as returned to readers: original_text is
// optionally replaced by a requested-language translation.
type Entry struct {
	SubtitleID       string `json:"subtitleId"`
	SpeakerID        string `json:"speakerId"`
	SpeakerName      string `json:"speakerName,omitempty"`
	Text             string `json:"text"`
	OriginalLanguage string `json:"originalLanguage"`
	DisplayLanguage  string `json:"displayLanguage"`
	TimestampUnixMS  int64  `json:"timestampMs"`
}

// Write persists a finalized subtitle row. Called only from the
// orchestrator's final persistence step; callers should log, not
// propagate, any returned error so a DB hiccup never blocks the live
// pipeline.
func Write(roomID string, sessionID *string, speakerID, originalText, originalLanguage string, translations map[string]string, audioObjectKey *string) (*database.Subtitle, error) {
	s, err := database.CreateSubtitle(roomID, sessionID, speakerID, originalText, originalLanguage, translations, audioObjectKey)
	if err != nil {
		return nil, fmt.Errorf("transcript: write subtitle: %w", err)
	}
	return s, nil
}

// AugmentTranslation records a translation discovered after the
// original write (a background fill completing later).
func AugmentTranslation(subtitleID, lang, text string) error {
	return database.AugmentTranslations(subtitleID, map[string]string{lang: text})
}

// Read returns a room's transcript in ascending timestamp order. When
// lang is non-empty and differs from a row's original_language, the
// row's text is replaced by its translations[lang] entry if present;
// rows that predate that translation fall back to original_text.
func Read(roomID, lang string, speakerNames map[string]string) ([]Entry, error) {
	rows, err := database.ListTranscript(roomID, nil)
	if err != nil {
		return nil, fmt.Errorf("transcript: read room %s: %w", roomID, err)
	}

	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, renderEntry(&r, lang, speakerNames))
	}
	return out, nil
}

// renderEntry applies the requested-language substitution rule for one
// row: fall back to original_text whenever the row predates a
// translation for the requested language.
func renderEntry(r *database.Subtitle, lang string, speakerNames map[string]string) Entry {
	text := r.OriginalText
	displayLang := r.OriginalLanguage
	if lang != "" && lang != r.OriginalLanguage {
		if translated, ok := r.Translations[lang]; ok {
			text = translated
			displayLang = lang
		}
	}
	return Entry{
		SubtitleID:       r.ID,
		SpeakerID:        r.SpeakerID,
		SpeakerName:      speakerNames[r.SpeakerID],
		Text:             text,
		OriginalLanguage: r.OriginalLanguage,
		DisplayLanguage:  displayLang,
		TimestampUnixMS:  r.Timestamp.UnixMilli(),
	}
}
