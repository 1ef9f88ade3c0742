package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// MemoryCache is the in-process fallback used when REDIS_URL is unset,
// in the style of the sibling example's sync.Map-backed PipelineCache.
// mark-pending ownership is enforced with one mutex per process (not
// per key) since this path only ever runs inside a single binary;
// golang.org/x/sync/singleflight collapses concurrent
// GetTranslation(wait=true) pollers for the same key into one poll loop.
type MemoryCache struct {
	originals    sync.Map // subtitleID -> entry{Original}
	translations sync.Map // subtitleID:lang -> entry{string}

	mu      sync.Mutex
	pending map[string]time.Time

	// waiters collapses concurrent GetTranslation(wait=true) callers
	// for the same key into a single poll loop.
	waiters singleflight.Group
}

// NewMemoryCache constructs the fallback cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{pending: make(map[string]time.Time)}
}

func (c *MemoryCache) StoreOriginal(_ context.Context, subtitleID, text, lang string) error {
	c.originals.Store(subtitleID, entry{
		value:     Original{Text: text, Lang: lang},
		expiresAt: time.Now().Add(contentTTL),
	})
	return nil
}

func (c *MemoryCache) GetOriginal(_ context.Context, subtitleID string) (Original, bool, error) {
	v, ok := c.originals.Load(subtitleID)
	if !ok {
		return Original{}, false, nil
	}
	e := v.(entry)
	if time.Now().After(e.expiresAt) {
		c.originals.Delete(subtitleID)
		return Original{}, false, nil
	}
	return e.value.(Original), true, nil
}

func (c *MemoryCache) StoreTranslation(_ context.Context, subtitleID, lang, text string) error {
	key := subtitleID + ":" + lang
	c.translations.Store(key, entry{value: text, expiresAt: time.Now().Add(contentTTL)})
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) MarkPending(_ context.Context, subtitleID, lang string) (bool, error) {
	key := subtitleID + ":" + lang
	if _, found, _ := c.peekTranslation(key); found {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if expiry, ok := c.pending[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	c.pending[key] = time.Now().Add(pendingTTL)
	return true, nil
}

func (c *MemoryCache) ClearPending(_ context.Context, subtitleID, lang string) error {
	key := subtitleID + ":" + lang
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) GetTranslation(ctx context.Context, subtitleID, lang string, wait bool) (string, bool, error) {
	key := subtitleID + ":" + lang
	if text, found, _ := c.peekTranslation(key); found {
		return text, true, nil
	}
	if !wait {
		return "", false, nil
	}

	c.mu.Lock()
	_, isPending := c.pending[key]
	c.mu.Unlock()
	if !isPending {
		return "", false, nil
	}

	v, err, _ := c.waiters.Do(key, func() (interface{}, error) {
		deadline := time.Now().Add(maxWait)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for time.Now().Before(deadline) {
			<-ticker.C
			if text, found, _ := c.peekTranslation(key); found {
				return text, nil
			}
			c.mu.Lock()
			_, stillPending := c.pending[key]
			c.mu.Unlock()
			if !stillPending {
				return "", nil
			}
		}
		return "", nil
	})
	if err != nil {
		return "", false, err
	}
	text, _ := v.(string)
	return text, text != "", nil
}

func (c *MemoryCache) peekTranslation(key string) (string, bool, error) {
	v, ok := c.translations.Load(key)
	if !ok {
		return "", false, nil
	}
	e := v.(entry)
	if time.Now().After(e.expiresAt) {
		c.translations.Delete(key)
		return "", false, nil
	}
	return e.value.(string), true, nil
}

func (c *MemoryCache) AllTranslations(_ context.Context, subtitleID string) (map[string]string, error) {
	out := make(map[string]string)
	prefix := subtitleID + ":"
	now := time.Now()
	c.translations.Range(func(k, v interface{}) bool {
		key := k.(string)
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			return true
		}
		e := v.(entry)
		if now.After(e.expiresAt) {
			return true
		}
		lang := key[len(prefix):]
		out[lang] = e.value.(string)
		return true
	})
	return out, nil
}
