package cache

import "log"

// New builds a Redis-backed cache when redisURL is set, falling back
// to the in-process implementation otherwise so the server remains
// runnable without external services in development.
func New(redisURL string) Cache {
	if redisURL == "" {
		log.Printf("cache: REDIS_URL unset, using in-process fallback cache")
		return NewMemoryCache()
	}
	c, err := NewRedisCache(redisURL)
	if err != nil {
		log.Printf("cache: failed to connect to redis (%v), using in-process fallback cache", err)
		return NewMemoryCache()
	}
	return c
}
