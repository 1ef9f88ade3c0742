package pipeline

import (
	"realtime-caption-translator/internal/database"
	"realtime-caption-translator/internal/session"
	"realtime-caption-translator/internal/transcript"
)

// liveStore is the production subtitleStore: session lifecycle through
// session.Manager, subtitle rows through the transcript package, both
// ultimately backed by the global *sql.DB.
type liveStore struct {
	sessions *session.Manager
}

// NewLiveStore builds the Postgres-backed persistence seam used
// outside of tests.
func NewLiveStore(sessions *session.Manager) subtitleStore {
	return liveStore{sessions: sessions}
}

func (s liveStore) getOrCreateActiveSession(roomID string) (*database.MeetingSession, error) {
	return s.sessions.GetOrCreateActive(roomID)
}

func (liveStore) writeSubtitle(roomID string, sessionID *string, speakerID, originalText, originalLanguage string, translations map[string]string, audioObjectKey *string) (*database.Subtitle, error) {
	return transcript.Write(roomID, sessionID, speakerID, originalText, originalLanguage, translations, audioObjectKey)
}

func (liveStore) augmentTranslation(subtitleID, lang, text string) error {
	return transcript.AugmentTranslation(subtitleID, lang, text)
}
