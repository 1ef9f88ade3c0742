package room

import "testing"

func TestPolicyAllowsChecksLanguageList(t *testing.T) {
	p := basicPolicy()
	if !p.Allows("ja") {
		t.Fatal("expected ja to be allowed")
	}
	if p.Allows("fr") {
		t.Fatal("expected fr to be rejected")
	}
}

func basicPolicy() Policy {
	return Policy{
		RoomID:           "room-1",
		Name:             "Standup",
		AllowedLanguages: []string{"en", "ja", "vi"},
		DefaultAudioMode: AudioOriginal,
		AllowModeSwitch:  true,
	}
}

func TestAddParticipantAppliesDefaults(t *testing.T) {
	r := New(basicPolicy())
	r.AddParticipant(Participant{UserID: "u1", NativeLanguage: "en"})

	p, ok := r.Get("u1")
	if !ok {
		t.Fatal("expected participant to be present")
	}
	if p.AudioMode != AudioOriginal {
		t.Fatalf("expected default audio mode, got %v", p.AudioMode)
	}
	if p.TargetLanguage != "en" {
		t.Fatalf("expected target language to default to native language, got %q", p.TargetLanguage)
	}
}

func TestUpdatePreferenceRejectsDisallowedLanguage(t *testing.T) {
	r := New(basicPolicy())
	r.AddParticipant(Participant{UserID: "u1", NativeLanguage: "en"})

	bad := "de"
	err := r.UpdatePreference("u1", PreferenceUpdate{TargetLanguage: &bad})
	if err != ErrLanguageNotAllowed {
		t.Fatalf("expected ErrLanguageNotAllowed, got %v", err)
	}
}

func TestUpdatePreferenceRejectsModeSwitchWhenDisallowed(t *testing.T) {
	policy := basicPolicy()
	policy.AllowModeSwitch = false
	r := New(policy)
	r.AddParticipant(Participant{UserID: "u1", NativeLanguage: "en", AudioMode: AudioOriginal})

	translated := AudioTranslated
	err := r.UpdatePreference("u1", PreferenceUpdate{AudioMode: &translated})
	if err != ErrModeSwitchDisallowed {
		t.Fatalf("expected ErrModeSwitchDisallowed, got %v", err)
	}
}

func TestUpdatePreferenceUnknownParticipant(t *testing.T) {
	r := New(basicPolicy())
	err := r.UpdatePreference("ghost", PreferenceUpdate{})
	if err != ErrParticipantNotFound {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestNextSubtitleSeqIsMonotonicAndResets(t *testing.T) {
	r := New(basicPolicy())
	if s := r.NextSubtitleSeq(); s != 1 {
		t.Fatalf("expected first seq to be 1, got %d", s)
	}
	if s := r.NextSubtitleSeq(); s != 2 {
		t.Fatalf("expected second seq to be 2, got %d", s)
	}

	r.Reset()
	if s := r.NextSubtitleSeq(); s != 1 {
		t.Fatalf("expected seq to reset to 1 after Reset, got %d", s)
	}
}

func TestDedupSuppressesRepeatedTextPerSpeaker(t *testing.T) {
	r := New(basicPolicy())

	if r.Dedup("u1", "hello") {
		t.Fatal("first occurrence should not be flagged as a duplicate")
	}
	if !r.Dedup("u1", "hello") {
		t.Fatal("repeated text from the same speaker should be flagged as a duplicate")
	}
	if r.Dedup("u2", "hello") {
		t.Fatal("the same text from a different speaker should not be a duplicate")
	}
	if r.Dedup("u1", "world") {
		t.Fatal("new text from the same speaker should not be a duplicate")
	}
}

func TestRemoveParticipantReportsEmpty(t *testing.T) {
	r := New(basicPolicy())
	r.AddParticipant(Participant{UserID: "u1"})
	r.AddParticipant(Participant{UserID: "u2"})

	if empty := r.RemoveParticipant("u1"); empty {
		t.Fatal("room should not be empty with one participant remaining")
	}
	if empty := r.RemoveParticipant("u2"); !empty {
		t.Fatal("room should be empty once the last participant leaves")
	}
}

func TestManagerGetOrCreateAndDispose(t *testing.T) {
	m := NewManager()
	policy := basicPolicy()

	r1 := m.GetOrCreateRoom(policy)
	r2 := m.GetOrCreateRoom(policy)
	if r1 != r2 {
		t.Fatal("expected GetOrCreateRoom to return the same room on a second call")
	}

	if disposed := m.DisposeIfEmpty(policy.RoomID); !disposed {
		t.Fatal("expected an empty room to be disposed")
	}
	if _, ok := m.GetRoom(policy.RoomID); ok {
		t.Fatal("expected the room to be gone after disposal")
	}

	r1.AddParticipant(Participant{UserID: "u1"})
	r3 := m.GetOrCreateRoom(policy)
	r3.AddParticipant(Participant{UserID: "u1"})
	if disposed := m.DisposeIfEmpty(policy.RoomID); disposed {
		t.Fatal("expected a non-empty room to survive DisposeIfEmpty")
	}
}

func TestManagerDisposeIfEmptyCancelsRoomContext(t *testing.T) {
	m := NewManager()
	policy := basicPolicy()
	r := m.GetOrCreateRoom(policy)
	ctx := r.Context()

	if !m.DisposeIfEmpty(policy.RoomID) {
		t.Fatal("expected an empty room to be disposed")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected room disposal to cancel its lifetime context")
	}
}

func TestInboundContextIsStableAcrossCallsForSameParticipant(t *testing.T) {
	r := New(basicPolicy())
	ctx1 := r.InboundContext("u1")
	ctx2 := r.InboundContext("u1")
	if ctx1 != ctx2 {
		t.Fatal("expected the same inbound context on repeated calls for one participant")
	}
}

func TestCancelInboundOnlyCancelsThatParticipant(t *testing.T) {
	r := New(basicPolicy())
	ctx1 := r.InboundContext("u1")
	ctx2 := r.InboundContext("u2")

	r.CancelInbound("u1")

	select {
	case <-ctx1.Done():
	default:
		t.Fatal("expected u1's inbound context to be cancelled")
	}
	select {
	case <-ctx2.Done():
		t.Fatal("did not expect u2's inbound context to be cancelled")
	default:
	}
}

func TestRoomDisposalCancelsInboundContexts(t *testing.T) {
	m := NewManager()
	policy := basicPolicy()
	r := m.GetOrCreateRoom(policy)
	ctx := r.InboundContext("u1")

	m.DisposeIfEmpty(policy.RoomID)

	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected room disposal to cancel outstanding inbound contexts")
	}
}
