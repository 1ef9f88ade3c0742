package storage

import "testing"

func TestDetectContentTypeKnownExtension(t *testing.T) {
	if got := detectContentType("payload.json"); got != "application/json" {
		t.Fatalf("unexpected content type for .json: %q", got)
	}
}

func TestDetectContentTypeFallsBackWithoutExtension(t *testing.T) {
	if got := detectContentType("noext"); got != "application/octet-stream" {
		t.Fatalf("expected fallback content type, got %q", got)
	}
}

func TestSafeObjectKeyJoinsAndSanitizes(t *testing.T) {
	got := SafeObjectKey("utterances", "room 1", "sub-1.wav")
	want := "utterances/room_1/sub-1.wav"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSafeObjectKeySkipsEmptyParts(t *testing.T) {
	got := SafeObjectKey("a", "", "b")
	if got != "a/b" {
		t.Fatalf("expected empty parts to be skipped, got %q", got)
	}
}

func TestSafeObjectKeyStripsBackslashesAndSlashes(t *testing.T) {
	got := SafeObjectKey("/a/", `b\c\`)
	if got != "a/b/c" {
		t.Fatalf("got %q", got)
	}
}

func TestMinioClientDisabledByDefault(t *testing.T) {
	var m MinioClient
	if m.Enabled() {
		t.Fatal("expected a zero-value client to be disabled")
	}
}
