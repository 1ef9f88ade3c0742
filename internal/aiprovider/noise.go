package aiprovider

import "strings"

// hallucinationPatterns are common ASR/LLM hallucinations on near-silent
// or noisy input: mono-syllabic confirmations, platform taglines, and
// punctuation-only output. Matching text is coerced to empty per the
// noise-filtering contract.
var hallucinationPatterns = []string{
	"thank you",
	"thanks for watching",
	"thank you for watching",
	"please subscribe",
	"subscribe to my channel",
	"bye bye",
	"okay",
	"ok",
	"yes",
	"mm",
	"mm-hmm",
	"uh",
	"um",
	"...",
	"you",
}

// filterNoise coerces curated ASR hallucinations and punctuation-only
// output to empty, per contract (c).
func filterNoise(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	if isPunctuationOnly(trimmed) {
		return ""
	}

	lower := strings.ToLower(trimmed)
	lower = strings.Trim(lower, ".!?,\"' ")
	for _, pattern := range hallucinationPatterns {
		if lower == pattern {
			return ""
		}
	}

	return trimmed
}

func isPunctuationOnly(s string) bool {
	for _, r := range s {
		switch r {
		case '.', '!', '?', ',', '"', '\'', ' ', '-', '\n', '\t':
			continue
		default:
			return false
		}
	}
	return true
}

// machineTranslationPrompt builds a strict system prompt that defends
// against models attempting to converse instead of translating.
func machineTranslationPrompt(srcLang, tgtLang string, recentContext []string) string {
	var b strings.Builder
	b.WriteString("You are a translation machine, not a conversational assistant. ")
	b.WriteString("Translate the given text from ")
	b.WriteString(srcLang)
	b.WriteString(" to ")
	b.WriteString(tgtLang)
	b.WriteString(". Output only the translation, nothing else. ")
	b.WriteString("Never acknowledge, greet, answer questions, or add commentary. ")
	b.WriteString("Preserve tone and meaning; do not summarize or expand.")
	if len(recentContext) > 0 {
		b.WriteString(" For terminology consistency, recent prior translations in this conversation were: ")
		b.WriteString(strings.Join(recentContext, " | "))
	}
	return b.String()
}
