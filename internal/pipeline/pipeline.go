// Package pipeline implements the Pipeline Orchestrator (C7): the
// dual-path, ordering-preserving, failure-tolerant algorithm that
// turns one accepted utterance into fan-out audio, fan-out subtitles,
// background translation fills, and a persisted transcript row.
// Grounded on the teacher's per-chunk goroutine dispatch
// (internal/session.Server poll loop) and the sibling example's
// translateParallel fan-out over a WaitGroup.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"realtime-caption-translator/internal/aiprovider"
	"realtime-caption-translator/internal/cache"
	"realtime-caption-translator/internal/database"
	"realtime-caption-translator/internal/hub"
	"realtime-caption-translator/internal/qos"
	"realtime-caption-translator/internal/room"
	"realtime-caption-translator/internal/storage"
	"realtime-caption-translator/internal/vad"
)

// subtitleStore is the persistence seam for step 10 (and the
// background-fill augment in step 9): get-or-create the room's active
// session, write the finalized subtitle row, and later amend it with a
// translation that completes after the fact. The production
// implementation (liveStore, store.go) chains session.Manager and the
// transcript package, both backed by a live Postgres; tests substitute
// an in-memory fake so this file's fan-out and failure-handling logic
// is verifiable without a database.
type subtitleStore interface {
	getOrCreateActiveSession(roomID string) (*database.MeetingSession, error)
	writeSubtitle(roomID string, sessionID *string, speakerID, originalText, originalLanguage string, translations map[string]string, audioObjectKey *string) (*database.Subtitle, error)
	augmentTranslation(subtitleID, lang, text string) error
}

const minWavSize = 16000 // ~44-byte header + ~0.5s of 16kHz mono PCM16

// Orchestrator wires C1-C6, C8 and C9 together to process one
// utterance at a time. Each utterance runs in its own goroutine,
// spawned by the caller (the connection's inbound read loop); the
// orchestrator itself holds no per-utterance state.
type Orchestrator struct {
	Provider aiprovider.Provider
	Cache    cache.Cache
	Hub      *hub.Hub
	Store    subtitleStore
	QoS      *qos.Manager

	// Archive is optional; when enabled, the raw utterance WAV is
	// uploaded alongside the transcript row it produced.
	Archive *storage.MinioClient
}

type subtitleMessage struct {
	Type             string `json:"type"`
	ID               string `json:"id"`
	Seq              uint64 `json:"seq"`
	SpeakerID        string `json:"speaker_id"`
	Text             string `json:"text"`
	Lang             string `json:"lang"`
	IsTranslated     bool   `json:"is_translated,omitempty"`
	TranslationFailed bool  `json:"translation_failed,omitempty"`
}

type qosWarning struct {
	Type             string `json:"type"`
	SubtitleID       string `json:"subtitle_id,omitempty"`
	DegradationLevel string `json:"degradation_level"`
}

// ProcessUtterance runs the full 10-step algorithm for one speech
// segment. Errors are logged internally per the spec's failure
// semantics; the return error is non-nil only for admission-time
// rejections the caller may want to account for.
func (o *Orchestrator) ProcessUtterance(ctx context.Context, r *room.Room, speakerID string, audioBytes []byte) error {
	// QoS latency is measured from pipeline entry.
	entered := time.Now()

	// Step 1: admission.
	if len(audioBytes) < minWavSize {
		return fmt.Errorf("pipeline: utterance too short (%d bytes)", len(audioBytes))
	}
	ok, err := vad.Gate(audioBytes)
	if err != nil {
		return fmt.Errorf("pipeline: vad gate: %w", err)
	}
	if !ok {
		return nil
	}

	speaker, found := r.Get(speakerID)
	if !found {
		return fmt.Errorf("pipeline: speaker %s not in room", speakerID)
	}
	listeners := r.Snapshot()

	// Step 2: immediate original fan-out, ahead of any ASR/translation work.
	for _, p := range listeners {
		if p.UserID == speakerID {
			continue
		}
		if p.AudioMode == room.AudioOriginal {
			o.Hub.SendBytes(r.Policy.RoomID, p.UserID, audioBytes)
		}
	}

	// Step 3: language-detecting ASR.
	originalText, detectedLang, err := o.Provider.DetectLanguage(ctx, audioBytes, speaker.NativeLanguage)
	if err != nil {
		log.Printf("pipeline: detect_language failed for room=%s speaker=%s: %v", r.Policy.RoomID, speakerID, err)
		return nil
	}
	speakerLang := detectedLang
	if speakerLang == "" {
		speakerLang = speaker.NativeLanguage
	}
	if originalText == "" {
		return nil
	}

	// Step 4: classify remaining listeners; translated-mode listeners
	// whose target equals speakerLang get audio now, are reclassified
	// onto the original-text subtitle path, and drop out of the
	// translation buckets.
	buckets := make(map[string][]room.Participant)
	var reclassifiedToOriginal []room.Participant
	for _, p := range listeners {
		if p.UserID == speakerID || p.AudioMode != room.AudioTranslated {
			continue
		}
		tgt := p.TargetLanguage
		if tgt == "" {
			tgt = p.NativeLanguage
		}
		if tgt == speakerLang {
			o.Hub.SendBytes(r.Policy.RoomID, p.UserID, audioBytes)
			reclassifiedToOriginal = append(reclassifiedToOriginal, p)
			continue
		}
		buckets[tgt] = append(buckets[tgt], p)
	}

	// Step 5: dedup.
	if r.Dedup(speakerID, originalText) {
		return nil
	}

	// Step 6: subtitle identity.
	subtitleID := uuid.NewString()
	seq := r.NextSubtitleSeq()

	// Step 7: original-subtitle fan-out.
	speakerSeesOwnText := speaker.AudioMode != room.AudioTranslated
	for _, p := range listeners {
		if p.UserID == speakerID {
			continue
		}
		if p.AudioMode == room.AudioOriginal && p.SubtitleEnabled {
			o.sendSubtitle(r.Policy.RoomID, p.UserID, subtitleID, seq, speakerID, originalText, speakerLang, false, false)
		}
	}
	for _, p := range reclassifiedToOriginal {
		if p.SubtitleEnabled {
			o.sendSubtitle(r.Policy.RoomID, p.UserID, subtitleID, seq, speakerID, originalText, speakerLang, false, false)
		}
	}
	if speakerSeesOwnText && speaker.SubtitleEnabled {
		o.sendSubtitle(r.Policy.RoomID, speakerID, subtitleID, seq, speakerID, originalText, speakerLang, false, false)
	}

	// Step 8: translated fan-out, one goroutine per target bucket.
	collected := o.translateBuckets(ctx, r, entered, subtitleID, seq, speakerID, speaker, speakerLang, originalText, audioBytes, buckets)

	// Step 9: background translation fill for subtitle-enabled
	// original-mode listeners whose target language wasn't covered above.
	o.fillMissingTranslations(r.Policy.RoomID, subtitleID, speakerLang, originalText, listeners, collected)

	// Step 10: persistence.
	o.persist(ctx, r.Policy.RoomID, subtitleID, speakerID, originalText, speakerLang, collected, audioBytes)

	return nil
}

func (o *Orchestrator) sendSubtitle(roomID, userID, subtitleID string, seq uint64, speakerID, text, lang string, translated, failed bool) {
	msg := subtitleMessage{
		Type: "subtitle", ID: subtitleID, Seq: seq, SpeakerID: speakerID,
		Text: text, Lang: lang, IsTranslated: translated, TranslationFailed: failed,
	}
	if err := o.Hub.SendSubtitle(roomID, userID, msg, seq); err != nil {
		log.Printf("pipeline: send subtitle to %s failed: %v", userID, err)
	}
}

// translateBuckets runs step 8 for every target-language bucket in
// parallel, joined by a WaitGroup, and returns the translations
// collected for persistence.
func (o *Orchestrator) translateBuckets(ctx context.Context, r *room.Room, entered time.Time, subtitleID string, seq uint64, speakerID string, speaker room.Participant, speakerLang, originalText string, audioBytes []byte, buckets map[string][]room.Participant) map[string]string {
	type result struct {
		tgt  string
		text string
	}
	resultsCh := make(chan result, len(buckets))

	var wg sync.WaitGroup
	for tgt, bucketListeners := range buckets {
		tgt, bucketListeners := tgt, bucketListeners
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor := o.QoS.ForRoom(r.Policy.RoomID)
			metrics := qos.Metrics{StartTime: entered}
			translated, err := o.Provider.Translate(ctx, audioBytes, speakerLang, tgt)
			out := monitor.End(metrics)

			failed := err != nil
			text := translated.TranslatedText
			if failed {
				log.Printf("pipeline: translate to %s failed: %v", tgt, err)
				text = ""
			}
			fallback := out.ShouldFallbackToSubtitle

			for _, p := range bucketListeners {
				if !failed && !fallback && len(translated.TranslatedAudio) > 0 && p.UserID != speakerID {
					o.Hub.SendBytes(r.Policy.RoomID, p.UserID, translated.TranslatedAudio)
				}
				if p.SubtitleEnabled {
					switch {
					case failed:
						// Translation failed: fall back to the original-language
						// text so the listener still sees something, flagged.
						o.sendSubtitle(r.Policy.RoomID, p.UserID, subtitleID, seq, speakerID, originalText, speakerLang, false, true)
					case text != "":
						o.sendSubtitle(r.Policy.RoomID, p.UserID, subtitleID, seq, speakerID, text, tgt, true, false)
					}
				}
				if fallback && !failed {
					o.Hub.SendJSON(r.Policy.RoomID, p.UserID, qosWarning{Type: "qos_warning", SubtitleID: subtitleID, DegradationLevel: string(out.DegradationLevel)})
				}
			}

			// The speaker, if in translated mode targeting this bucket,
			// receives the subtitle only (never the audio echo).
			if speaker.AudioMode == room.AudioTranslated {
				spkTgt := speaker.TargetLanguage
				if spkTgt == "" {
					spkTgt = speaker.NativeLanguage
				}
				if spkTgt == tgt && speaker.SubtitleEnabled {
					switch {
					case failed:
						o.sendSubtitle(r.Policy.RoomID, speakerID, subtitleID, seq, speakerID, originalText, speakerLang, false, true)
					case text != "":
						o.sendSubtitle(r.Policy.RoomID, speakerID, subtitleID, seq, speakerID, text, tgt, true, false)
					}
				}
			}

			if !failed && text != "" {
				resultsCh <- result{tgt: tgt, text: text}
			}
		}()
	}
	wg.Wait()
	close(resultsCh)

	collected := make(map[string]string, len(buckets))
	for res := range resultsCh {
		collected[res.tgt] = res.text
	}
	return collected
}

// fillMissingTranslations spawns detached background tasks (step 9)
// for target languages needed by subtitle-enabled original-mode
// listeners that step 8 didn't already produce.
func (o *Orchestrator) fillMissingTranslations(roomID, subtitleID, speakerLang, originalText string, listeners []room.Participant, alreadyCollected map[string]string) {
	needed := map[string]bool{}
	for _, p := range listeners {
		if p.AudioMode != room.AudioOriginal || !p.SubtitleEnabled {
			continue
		}
		tgt := p.TargetLanguage
		if tgt == "" || tgt == speakerLang {
			continue
		}
		if _, ok := alreadyCollected[tgt]; ok {
			continue
		}
		needed[tgt] = true
	}

	for tgt := range needed {
		tgt := tgt
		marked, err := o.Cache.MarkPending(context.Background(), subtitleID, tgt)
		if err != nil {
			log.Printf("pipeline: mark_pending failed for %s/%s: %v", subtitleID, tgt, err)
			continue
		}
		if !marked {
			continue
		}
		go func() {
			ctx := context.Background()
			translated, err := o.Provider.TranslateText(ctx, originalText, speakerLang, tgt, nil)
			if err != nil {
				log.Printf("pipeline: background translate %s->%s failed: %v", speakerLang, tgt, err)
				if clearErr := o.Cache.ClearPending(ctx, subtitleID, tgt); clearErr != nil {
					log.Printf("pipeline: clear_pending failed for %s/%s: %v", subtitleID, tgt, clearErr)
				}
				return
			}
			if err := o.Cache.StoreTranslation(ctx, subtitleID, tgt, translated); err != nil {
				log.Printf("pipeline: store_translation failed for %s/%s: %v", subtitleID, tgt, err)
				return
			}
			if err := o.Store.augmentTranslation(subtitleID, tgt, translated); err != nil {
				log.Printf("pipeline: augment persisted translation failed for %s/%s: %v", subtitleID, tgt, err)
			}
		}()
	}
}

func (o *Orchestrator) persist(ctx context.Context, roomID, subtitleID, speakerID, originalText, speakerLang string, translations map[string]string, audioBytes []byte) {
	sess, err := o.Store.getOrCreateActiveSession(roomID)
	if err != nil {
		log.Printf("pipeline: get_or_create_active_session failed for room %s: %v", roomID, err)
		return
	}

	var audioObjectKey *string
	if o.Archive.Enabled() {
		key := storage.SafeObjectKey("utterances", roomID, subtitleID+".wav")
		if _, _, err := o.Archive.UploadBytes(ctx, key, audioBytes, "audio/wav"); err != nil {
			log.Printf("pipeline: archive upload failed for %s: %v", subtitleID, err)
		} else {
			audioObjectKey = &key
		}
	}

	sessionID := sess.ID
	if _, err := o.Store.writeSubtitle(roomID, &sessionID, speakerID, originalText, speakerLang, translations, audioObjectKey); err != nil {
		log.Printf("pipeline: persist subtitle %s failed: %v", subtitleID, err)
	}
	if err := o.Cache.StoreOriginal(context.Background(), subtitleID, originalText, speakerLang); err != nil {
		log.Printf("pipeline: cache store_original failed for %s: %v", subtitleID, err)
	}
}
