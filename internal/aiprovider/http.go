package aiprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPConfig configures the httpasr backend.
type HTTPConfig struct {
	ASRBaseURL         string
	TranslationBaseURL string
}

// httpProvider calls out to plain HTTP ASR/translation services, in the
// teacher's request/response envelope (internal/asr, internal/translate).
type httpProvider struct {
	asrBaseURL   string
	translateURL string
	http         *http.Client
}

func newHTTPProvider(cfg HTTPConfig) *httpProvider {
	return &httpProvider{
		asrBaseURL:   cfg.ASRBaseURL,
		translateURL: cfg.TranslationBaseURL,
		http:         &http.Client{Timeout: 120 * time.Second},
	}
}

type asrResp struct {
	Text string `json:"text"`
}

type detectResp struct {
	Language string `json:"language"`
	Text     string `json:"text"`
}

type translateReq struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Prompt     string `json:"prompt,omitempty"`
}

type translateResp struct {
	Translation string `json:"translation"`
}

func (h *httpProvider) Transcribe(ctx context.Context, audio []byte, hintLang string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.asrBaseURL+"/transcribe", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	if hintLang != "" {
		req.Header.Set("x-language", hintLang)
	}

	res, err := h.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return "", fmt.Errorf("asr status: %s", res.Status)
	}

	var r asrResp
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("decode transcribe response: %w", err)
	}
	return filterNoise(r.Text), nil
}

func (h *httpProvider) DetectLanguage(ctx context.Context, audio []byte, hintLang string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.asrBaseURL+"/detect-language", bytes.NewReader(audio))
	if err != nil {
		return "", "", fmt.Errorf("build detect-language request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	if hintLang != "" && hintLang != "multi" {
		req.Header.Set("x-language-hint", hintLang)
	}

	res, err := h.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("detect-language request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return "", "", fmt.Errorf("detect-language status: %s", res.Status)
	}

	var r detectResp
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return "", "", fmt.Errorf("decode detect-language response: %w", err)
	}
	return filterNoise(r.Text), normalizeLangCode(r.Language), nil
}

func (h *httpProvider) Translate(ctx context.Context, audio []byte, srcLang, tgtLang string) (TranslateResult, error) {
	if srcLang == tgtLang {
		text, err := h.Transcribe(ctx, audio, srcLang)
		if err != nil {
			return TranslateResult{}, err
		}
		return TranslateResult{OriginalText: text, TranslatedText: text}, nil
	}

	original, err := h.Transcribe(ctx, audio, srcLang)
	if err != nil {
		return TranslateResult{}, err
	}
	if original == "" {
		return TranslateResult{OriginalText: "", TranslatedText: ""}, nil
	}

	translated, err := h.TranslateText(ctx, original, srcLang, tgtLang, nil)
	if err != nil {
		return TranslateResult{OriginalText: original}, err
	}

	// This backend has no speech synthesis leg; translated audio stays
	// nil and C7 treats that the same as a TTS-less provider response.
	return TranslateResult{OriginalText: original, TranslatedText: translated}, nil
}

func (h *httpProvider) TranslateText(ctx context.Context, text, srcLang, tgtLang string, recentContext []string) (string, error) {
	if text == "" {
		return "", nil
	}
	if srcLang == tgtLang {
		return text, nil
	}

	body, err := json.Marshal(translateReq{
		Text:       text,
		SourceLang: srcLang,
		TargetLang: tgtLang,
		Prompt:     machineTranslationPrompt(srcLang, tgtLang, recentContext),
	})
	if err != nil {
		return "", fmt.Errorf("marshal translate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.translateURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := h.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("translation service returned %d: %s", res.StatusCode, string(respBody))
	}

	var r translateResp
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}
	return filterNoise(r.Translation), nil
}

// normalizeLangCode maps provider-reported language identifiers to the
// canonical two-letter codes the rest of the system uses.
func normalizeLangCode(lang string) string {
	switch lang {
	case "", "unknown", "und":
		return ""
	}
	if len(lang) > 2 {
		// e.g. "en-US", "zh-CN", "english" handled by the common cases below.
		switch lang[:2] {
		case "en", "ja", "zh", "vi", "es", "fr", "de", "ko":
			return lang[:2]
		}
	}
	return lang
}
