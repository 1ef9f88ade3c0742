package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs C4 with Redis/Valkey, grounded directly on the
// originating system's own subtitle_cache.py (SETEX / SET NX EX / SCAN).
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the given Redis URL (redis://host:port/db).
func NewRedisCache(url string) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

type originalPayload struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

func (c *RedisCache) StoreOriginal(ctx context.Context, subtitleID, text, lang string) error {
	data, err := json.Marshal(originalPayload{Text: text, Lang: lang})
	if err != nil {
		return fmt.Errorf("marshal original payload: %w", err)
	}
	if err := c.client.Set(ctx, originalKey(subtitleID), data, contentTTL).Err(); err != nil {
		return fmt.Errorf("store original: %w", err)
	}
	return nil
}

func (c *RedisCache) GetOriginal(ctx context.Context, subtitleID string) (Original, bool, error) {
	data, err := c.client.Get(ctx, originalKey(subtitleID)).Result()
	if err == redis.Nil {
		return Original{}, false, nil
	}
	if err != nil {
		return Original{}, false, fmt.Errorf("get original: %w", err)
	}
	var payload originalPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return Original{}, false, fmt.Errorf("unmarshal original payload: %w", err)
	}
	return Original{Text: payload.Text, Lang: payload.Lang}, true, nil
}

func (c *RedisCache) StoreTranslation(ctx context.Context, subtitleID, lang, text string) error {
	if err := c.client.Set(ctx, translationKey(subtitleID, lang), text, contentTTL).Err(); err != nil {
		return fmt.Errorf("store translation: %w", err)
	}
	c.client.Del(ctx, pendingKey(subtitleID, lang))
	return nil
}

func (c *RedisCache) MarkPending(ctx context.Context, subtitleID, lang string) (bool, error) {
	exists, err := c.client.Exists(ctx, translationKey(subtitleID, lang)).Result()
	if err != nil {
		return false, fmt.Errorf("check translation existence: %w", err)
	}
	if exists > 0 {
		return false, nil
	}

	ok, err := c.client.SetNX(ctx, pendingKey(subtitleID, lang), "1", pendingTTL).Result()
	if err != nil {
		return false, fmt.Errorf("mark pending: %w", err)
	}
	return ok, nil
}

func (c *RedisCache) ClearPending(ctx context.Context, subtitleID, lang string) error {
	if err := c.client.Del(ctx, pendingKey(subtitleID, lang)).Err(); err != nil {
		return fmt.Errorf("clear pending: %w", err)
	}
	return nil
}

func (c *RedisCache) GetTranslation(ctx context.Context, subtitleID, lang string, wait bool) (string, bool, error) {
	text, found, err := c.peekTranslation(ctx, subtitleID, lang)
	if err != nil || found || !wait {
		return text, found, err
	}

	pending, err := c.client.Exists(ctx, pendingKey(subtitleID, lang)).Result()
	if err != nil {
		return "", false, fmt.Errorf("check pending: %w", err)
	}
	if pending == 0 {
		return "", false, nil
	}

	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-ticker.C:
		}
		text, found, err := c.peekTranslation(ctx, subtitleID, lang)
		if err != nil {
			return "", false, err
		}
		if found {
			return text, true, nil
		}
		pending, err := c.client.Exists(ctx, pendingKey(subtitleID, lang)).Result()
		if err != nil {
			return "", false, fmt.Errorf("check pending: %w", err)
		}
		if pending == 0 {
			return "", false, nil
		}
	}
	return "", false, nil
}

func (c *RedisCache) peekTranslation(ctx context.Context, subtitleID, lang string) (string, bool, error) {
	text, err := c.client.Get(ctx, translationKey(subtitleID, lang)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get translation: %w", err)
	}
	return text, true, nil
}

func (c *RedisCache) AllTranslations(ctx context.Context, subtitleID string) (map[string]string, error) {
	pattern := "trans:" + subtitleID + ":*"
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan translations: %w", err)
	}
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget translations: %w", err)
	}

	out := make(map[string]string, len(keys))
	for i, key := range keys {
		v, ok := values[i].(string)
		if !ok {
			continue
		}
		parts := strings.Split(key, ":")
		lang := parts[len(parts)-1]
		out[lang] = v
	}
	return out, nil
}
