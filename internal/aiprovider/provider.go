// Package aiprovider defines the uniform ASR/translation/TTS contract
// and the noise-filtering and prompt-building rules shared by every
// backend, so contract enforcement happens exactly once regardless of
// which vendor is configured.
package aiprovider

import "context"

// TranslateResult is the outcome of a translate(audio, src, tgt) call.
type TranslateResult struct {
	OriginalText    string
	TranslatedText  string
	TranslatedAudio []byte // nil if the backend could not produce audio
}

// Provider is satisfied by every conforming AI backend.
type Provider interface {
	// Transcribe runs ASR in a known language.
	Transcribe(ctx context.Context, audio []byte, hintLang string) (string, error)

	// DetectLanguage runs ASR and returns the language actually spoken.
	// hintLang == "multi" signals auto-detect.
	DetectLanguage(ctx context.Context, audio []byte, hintLang string) (text, detectedLang string, err error)

	// Translate performs audio-to-(text+optional audio) translation.
	// If srcLang == tgtLang no text-translation call is made: ASR still
	// runs on the audio, and TranslatedText is the transcription itself.
	Translate(ctx context.Context, audio []byte, srcLang, tgtLang string) (TranslateResult, error)

	// TranslateText performs pure text translation. context is a short
	// window of recently translated text for terminology consistency;
	// it may be empty.
	TranslateText(ctx context.Context, text, srcLang, tgtLang string, recentContext []string) (string, error)
}

// New builds the configured backend. name is one of "httpasr", "aws".
func New(name string, cfg HTTPConfig, awsCfg AWSConfig) (Provider, error) {
	switch name {
	case "aws":
		return newAWSProvider(awsCfg)
	case "httpasr", "":
		return newHTTPProvider(cfg), nil
	default:
		return newHTTPProvider(cfg), nil
	}
}
