// Package room holds the Room State Manager (C5): ephemeral per-room
// state (participants, preferences, active speaker, subtitle_seq) with
// one logical writer per room and copy-on-read snapshots, generalized
// from the teacher's internal/meeting package.
package room

import (
	"context"
	"errors"
	"sync"
	"time"
)

// AudioMode is a listener's chosen delivery mode.
type AudioMode string

const (
	AudioOriginal   AudioMode = "original"
	AudioTranslated AudioMode = "translated"
)

var (
	// ErrLanguageNotAllowed is returned by UpdatePreference when the
	// requested target_language is not in the room's allowed set.
	ErrLanguageNotAllowed = errors.New("target language not allowed in this room")
	// ErrModeSwitchDisallowed is returned when the room forbids
	// runtime audio_mode changes.
	ErrModeSwitchDisallowed = errors.New("audio mode switching disallowed in this room")
	// ErrParticipantNotFound is returned by per-participant operations
	// on an unknown user id.
	ErrParticipantNotFound = errors.New("participant not found")
)

// Policy is the durable, effectively-immutable room configuration.
type Policy struct {
	RoomID           string
	Name             string
	AllowedLanguages []string
	DefaultAudioMode AudioMode
	AllowModeSwitch  bool
	IsPrivate        bool
	CreatorID        string
}

// Allows reports whether lang is one of the room's allowed languages.
func (p Policy) Allows(lang string) bool {
	for _, l := range p.AllowedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// Participant is the ephemeral per-room record for one connected user.
type Participant struct {
	UserID          string
	DisplayName     string
	NativeLanguage  string
	AudioMode       AudioMode
	SubtitleEnabled bool
	TargetLanguage  string
	JoinedAt        time.Time
	MicOn           bool
}

// PreferenceUpdate carries the optional fields of a preference_change
// message; nil pointers mean "leave unchanged".
type PreferenceUpdate struct {
	AudioMode       *AudioMode
	SubtitleEnabled *bool
	TargetLanguage  *string
}

// Room holds one room's runtime state. All mutations are serialized by
// mu; reads copy the participant map before releasing the lock.
type Room struct {
	Policy Policy

	mu                    sync.RWMutex
	participants          map[string]*Participant
	activeSpeaker         string
	subtitleSeq           uint64
	lastSubtitleBySpeaker map[string]string
	activeSessionID       string

	ctx            context.Context
	cancel         context.CancelFunc
	inboundCtx     map[string]context.Context
	inboundCancels map[string]context.CancelFunc
}

// New constructs an empty room for the given policy. The room carries
// its own lifetime context, cancelled on disposal; the per-participant
// contexts handed out by InboundContext are derived from it.
func New(policy Policy) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		Policy:                policy,
		participants:          make(map[string]*Participant),
		lastSubtitleBySpeaker: make(map[string]string),
		ctx:                   ctx,
		cancel:                cancel,
		inboundCtx:            make(map[string]context.Context),
		inboundCancels:        make(map[string]context.CancelFunc),
	}
}

// InboundContext returns the context a participant's per-utterance work
// should run under: a child of the room's lifetime context, so room
// disposal cancels it, but independently cancellable the moment that
// one participant disconnects without touching fan-out work targeting
// other listeners. The same context is reused across every utterance
// from one connection so concurrent in-flight utterances aren't
// cancelled by a later one arriving.
func (r *Room) InboundContext(userID string) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inboundCancels[userID]; !ok {
		ctx, cancel := context.WithCancel(r.ctx)
		r.inboundCancels[userID] = cancel
		r.inboundCtx[userID] = ctx
	}
	return r.inboundCtx[userID]
}

// CancelInbound cancels and forgets the per-participant inbound context,
// if one exists. Called on disconnect.
func (r *Room) CancelInbound(userID string) {
	r.mu.Lock()
	cancel, ok := r.inboundCancels[userID]
	delete(r.inboundCancels, userID)
	delete(r.inboundCtx, userID)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// Context returns the room's lifetime context, cancelled on disposal.
// Most callers want InboundContext instead, which also responds to a
// single participant's disconnect.
func (r *Room) Context() context.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ctx
}

// Cancel ends the room's lifetime context. Called on disposal.
func (r *Room) Cancel() {
	r.mu.RLock()
	cancel := r.cancel
	r.mu.RUnlock()
	cancel()
}

// AddParticipant adds or replaces a participant; idempotent on user id.
func (r *Room) AddParticipant(p Participant) {
	if p.TargetLanguage == "" {
		p.TargetLanguage = p.NativeLanguage
	}
	if p.AudioMode == "" {
		p.AudioMode = r.Policy.DefaultAudioMode
	}
	p.JoinedAt = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.UserID] = &p
}

// RemoveParticipant removes a participant and reports whether the room
// is now empty (disposal is the caller's responsibility, since it also
// touches the session lifecycle and the room registry).
func (r *Room) RemoveParticipant(userID string) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, userID)
	if r.activeSpeaker == userID {
		r.activeSpeaker = ""
	}
	return len(r.participants) == 0
}

// Reset clears runtime state on room disposal: subtitle_seq resets to
// zero and the per-speaker dedup window is forgotten.
func (r *Room) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subtitleSeq = 0
	r.lastSubtitleBySpeaker = make(map[string]string)
	r.activeSessionID = ""
	r.activeSpeaker = ""
}

// Snapshot returns a copy-on-read view of every participant.
func (r *Room) Snapshot() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	return out
}

// Get returns a copy of one participant's state.
func (r *Room) Get(userID string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[userID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// IsEmpty reports whether the room currently has no participants.
func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants) == 0
}

// UpdatePreference applies a validated preference change.
func (r *Room) UpdatePreference(userID string, update PreferenceUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[userID]
	if !ok {
		return ErrParticipantNotFound
	}

	if update.AudioMode != nil && *update.AudioMode != p.AudioMode {
		if !r.Policy.AllowModeSwitch {
			return ErrModeSwitchDisallowed
		}
		p.AudioMode = *update.AudioMode
	}
	if update.TargetLanguage != nil {
		if !r.Policy.Allows(*update.TargetLanguage) {
			return ErrLanguageNotAllowed
		}
		p.TargetLanguage = *update.TargetLanguage
	}
	if update.SubtitleEnabled != nil {
		p.SubtitleEnabled = *update.SubtitleEnabled
	}
	return nil
}

// SetActiveSpeaker is advisory; userID == "" clears it.
func (r *Room) SetActiveSpeaker(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeSpeaker = userID
}

// ActiveSpeaker returns the current advisory active speaker, if any.
func (r *Room) ActiveSpeaker() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeSpeaker, r.activeSpeaker != ""
}

// SetMic updates a participant's mic_on flag.
func (r *Room) SetMic(userID string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[userID]
	if !ok {
		return ErrParticipantNotFound
	}
	p.MicOn = on
	return nil
}

// NextSubtitleSeq allocates the next room-scoped monotonic sequence
// number; this is the single serialization point for subtitle_seq.
func (r *Room) NextSubtitleSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subtitleSeq++
	return r.subtitleSeq
}

// Dedup reports whether text duplicates the speaker's last subtitle
// and, if not, records it as the new "last" value for that speaker.
func (r *Room) Dedup(speakerID, text string) (isDuplicate bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastSubtitleBySpeaker[speakerID] == text {
		return true
	}
	r.lastSubtitleBySpeaker[speakerID] = text
	return false
}

// ActiveSessionID returns the cached active session id, if any.
func (r *Room) ActiveSessionID() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeSessionID, r.activeSessionID != ""
}

// SetActiveSessionID caches the currently open session id for this room.
func (r *Room) SetActiveSessionID(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeSessionID = id
}
