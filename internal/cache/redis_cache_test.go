package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) (*DiffCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c, err := NewDiffCache(context.Background(), "redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("NewDiffCache() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestNewDiffCacheRejectsBadURL(t *testing.T) {
	if _, err := NewDiffCache(context.Background(), "not a url", time.Hour); err == nil {
		t.Error("NewDiffCache() error = nil, want error")
	}
}

func TestSetAndGet(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	if _, found, err := c.Get(ctx, "doc-1", "r1", "r2"); err != nil || found {
		t.Fatalf("Get() on empty cache = %v, %v, want miss", found, err)
	}

	if err := c.Set(ctx, "doc-1", "r1", "r2", Entry{HTML: "<p>diff</p>"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, found, err := c.Get(ctx, "doc-1", "r1", "r2")
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v, want hit", found, err)
	}
	if got.HTML != "<p>diff</p>" || got.Empty || got.CreatedAt.IsZero() {
		t.Errorf("Get() = %+v", got)
	}
}

func TestEmptyResultIsCached(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "doc-1", "r1", "r2", Entry{Empty: true}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, found, err := c.Get(ctx, "doc-1", "r1", "r2")
	if err != nil || !found || !got.Empty {
		t.Errorf("Get() = %+v, %v, %v, want cached empty result", got, found, err)
	}
}

func TestEntriesExpire(t *testing.T) {
	c, s := setupTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "doc-1", "r1", "r2", Entry{HTML: "x"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if ttl := s.TTL(defaultPrefix + "doc-1:r1:r2"); ttl != time.Hour {
		t.Errorf("TTL = %v, want %v", ttl, time.Hour)
	}
	s.FastForward(2 * time.Hour)
	if _, found, _ := c.Get(ctx, "doc-1", "r1", "r2"); found {
		t.Error("Get() after expiry found entry")
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	for _, k := range [][3]string{{"doc-1", "r1", "r2"}, {"doc-1", "r2", "r3"}, {"doc-10", "r1", "r2"}} {
		if err := c.Set(ctx, k[0], k[1], k[2], Entry{HTML: "x"}); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if err := c.Invalidate(ctx, "doc-1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	for _, k := range [][2]string{{"r1", "r2"}, {"r2", "r3"}} {
		if _, found, _ := c.Get(ctx, "doc-1", k[0], k[1]); found {
			t.Errorf("Get(doc-1, %s, %s) found after invalidate", k[0], k[1])
		}
	}
	if _, found, _ := c.Get(ctx, "doc-10", "r1", "r2"); !found {
		t.Error("Invalidate(doc-1) removed doc-10")
	}
	if err := c.Invalidate(ctx, "doc-missing"); err != nil {
		t.Errorf("Invalidate() on missing document error = %v", err)
	}
}
