package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheStoreAndGetOriginal(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if _, found, err := c.GetOriginal(ctx, "sub-1"); err != nil || found {
		t.Fatalf("expected no original before it is stored, found=%v err=%v", found, err)
	}

	if err := c.StoreOriginal(ctx, "sub-1", "hello", "en"); err != nil {
		t.Fatalf("unexpected error storing original: %v", err)
	}

	got, found, err := c.GetOriginal(ctx, "sub-1")
	if err != nil || !found {
		t.Fatalf("expected stored original to be found, found=%v err=%v", found, err)
	}
	if got.Text != "hello" || got.Lang != "en" {
		t.Fatalf("unexpected original: %+v", got)
	}
}

func TestMemoryCacheMarkPendingIsSingleOwner(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	marked, err := c.MarkPending(ctx, "sub-1", "ja")
	if err != nil || !marked {
		t.Fatalf("expected the first caller to own the pending marker, marked=%v err=%v", marked, err)
	}

	marked, err = c.MarkPending(ctx, "sub-1", "ja")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if marked {
		t.Fatal("expected a second caller for the same key to not also own the marker")
	}
}

func TestMemoryCacheMarkPendingRefusesWhenTranslationExists(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.StoreTranslation(ctx, "sub-1", "ja", "konnichiwa"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	marked, err := c.MarkPending(ctx, "sub-1", "ja")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if marked {
		t.Fatal("expected MarkPending to refuse once a translation is already cached")
	}
}

func TestMemoryCacheGetTranslationWaitsForPendingThenResolves(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	marked, err := c.MarkPending(ctx, "sub-1", "vi")
	if err != nil || !marked {
		t.Fatalf("expected to own the pending marker, marked=%v err=%v", marked, err)
	}

	done := make(chan struct{})
	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = c.StoreTranslation(ctx, "sub-1", "vi", "xin chao")
		close(done)
	}()

	text, found, err := c.GetTranslation(ctx, "sub-1", "vi", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || text != "xin chao" {
		t.Fatalf("expected GetTranslation to observe the late write, found=%v text=%q", found, text)
	}
	<-done
}

func TestMemoryCacheGetTranslationWithoutWaitDoesNotBlock(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if _, err := c.MarkPending(ctx, "sub-1", "fr"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now()
	_, found, err := c.GetTranslation(ctx, "sub-1", "fr", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected no translation to be found yet")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("expected a non-waiting call to return immediately, took %v", elapsed)
	}
}

func TestMemoryCacheClearPendingAllowsRetry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	marked, err := c.MarkPending(ctx, "sub-1", "ja")
	if err != nil || !marked {
		t.Fatalf("expected to own the pending marker, marked=%v err=%v", marked, err)
	}

	if err := c.ClearPending(ctx, "sub-1", "ja"); err != nil {
		t.Fatalf("unexpected error clearing pending: %v", err)
	}

	marked, err = c.MarkPending(ctx, "sub-1", "ja")
	if err != nil || !marked {
		t.Fatalf("expected a new caller to be able to claim the marker after ClearPending, marked=%v err=%v", marked, err)
	}
}

func TestMemoryCacheAllTranslations(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.StoreTranslation(ctx, "sub-1", "ja", "a")
	_ = c.StoreTranslation(ctx, "sub-1", "vi", "b")
	_ = c.StoreTranslation(ctx, "sub-2", "ja", "c")

	all, err := c.AllTranslations(ctx, "sub-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 || all["ja"] != "a" || all["vi"] != "b" {
		t.Fatalf("unexpected translations for sub-1: %+v", all)
	}
}
