// Package cache implements the subtitle translation cache (C4):
// TTL-bounded original/translation content keyed by subtitle id and
// target language, plus an NX-based pending marker that gives callers
// single-flight ownership of translation work.
package cache

import (
	"context"
	"time"
)

// Original is the cached source text/language for a subtitle id.
type Original struct {
	Text string
	Lang string
}

// Cache is the C4 contract. Implementations must make MarkPending
// atomic: at most one caller for a given (id, lang) may receive true
// until the marker is cleared by StoreTranslation or expires.
type Cache interface {
	StoreOriginal(ctx context.Context, subtitleID, text, lang string) error
	GetOriginal(ctx context.Context, subtitleID string) (Original, bool, error)

	StoreTranslation(ctx context.Context, subtitleID, lang, text string) error

	// MarkPending returns true iff the caller now owns the translation
	// work for (subtitleID, lang): no content key existed and no
	// pending marker existed.
	MarkPending(ctx context.Context, subtitleID, lang string) (bool, error)

	// ClearPending releases a pending marker without storing a
	// translation, so a failed fill doesn't strand waiters until
	// pendingTTL lapses.
	ClearPending(ctx context.Context, subtitleID, lang string) error

	// GetTranslation returns the cached text if present. With wait, it
	// polls up to the wait window while a pending marker is held.
	GetTranslation(ctx context.Context, subtitleID, lang string, wait bool) (string, bool, error)

	// AllTranslations returns every cached (lang -> text) pair for a
	// subtitle id.
	AllTranslations(ctx context.Context, subtitleID string) (map[string]string, error)
}

const (
	contentTTL    = 1 * time.Hour
	pendingTTL    = 60 * time.Second
	maxWait       = 5 * time.Second
	pollInterval  = 100 * time.Millisecond
)

func originalKey(id string) string         { return "original:" + id }
func translationKey(id, lang string) string { return "trans:" + id + ":" + lang }
func pendingKey(id, lang string) string     { return "pending:" + id + ":" + lang }
