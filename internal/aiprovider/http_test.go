package aiprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeLangCodeHandlesKnownPrefixes(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"unknown": "",
		"und":   "",
		"en":    "en",
		"en-US": "en",
		"zh-CN": "zh",
		"xx":    "xx",
	}
	for in, want := range cases {
		if got := normalizeLangCode(in); got != want {
			t.Errorf("normalizeLangCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTTPProviderTranscribeFiltersNoise(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(asrResp{Text: "  Thank you.  "})
	}))
	defer srv.Close()

	p := newHTTPProvider(HTTPConfig{ASRBaseURL: srv.URL})
	text, err := p.Transcribe(context.Background(), []byte("audio"), "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" {
		t.Fatalf("expected noise to be filtered to empty, got %q", text)
	}
}

func TestHTTPProviderDetectLanguageNormalizesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(detectResp{Text: "hello there", Language: "en-US"})
	}))
	defer srv.Close()

	p := newHTTPProvider(HTTPConfig{ASRBaseURL: srv.URL})
	text, lang, err := p.DetectLanguage(context.Background(), []byte("audio"), "multi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello there" || lang != "en" {
		t.Fatalf("unexpected result: text=%q lang=%q", text, lang)
	}
}

func TestHTTPProviderTranslateTextSkipsWhenLanguagesMatch(t *testing.T) {
	p := newHTTPProvider(HTTPConfig{})
	out, err := p.TranslateText(context.Background(), "hello", "en", "en", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected text unchanged when languages match, got %q", out)
	}
}

func TestHTTPProviderTranslateTextReturnsTranslation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req translateReq
		json.NewDecoder(r.Body).Decode(&req)
		if req.SourceLang != "en" || req.TargetLang != "ja" {
			t.Fatalf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(translateResp{Translation: "konnichiwa"})
	}))
	defer srv.Close()

	p := newHTTPProvider(HTTPConfig{TranslationBaseURL: srv.URL})
	out, err := p.TranslateText(context.Background(), "hello", "en", "ja", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "konnichiwa" {
		t.Fatalf("unexpected translation: %q", out)
	}
}

func TestHTTPProviderTranslateTextPropagatesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := newHTTPProvider(HTTPConfig{TranslationBaseURL: srv.URL})
	if _, err := p.TranslateText(context.Background(), "hello", "en", "ja", nil); err == nil {
		t.Fatal("expected an error when the translation service fails")
	}
}

func TestHTTPProviderTranslateSkipsTranslateTextWhenSameLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(asrResp{Text: "hello"})
	}))
	defer srv.Close()

	p := newHTTPProvider(HTTPConfig{ASRBaseURL: srv.URL})
	result, err := p.Translate(context.Background(), []byte("audio"), "en", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OriginalText != "hello" || result.TranslatedText != "hello" {
		t.Fatalf("unexpected result: %+v", result)
	}
}
