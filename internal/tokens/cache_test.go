package tokens

import (
	"testing"
	"time"
)

func TestPutGetRoundTrip(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := cache.Put("filespace", "tok-123", time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	token, ok := cache.Get("filespace")
	if !ok {
		t.Fatal("expected token present")
	}
	if token.Value != "tok-123" {
		t.Fatalf("unexpected token value %q", token.Value)
	}
}

func TestZeroTTLIsAbsent(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := cache.Put("host", "tok", 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, ok := cache.Get("host"); ok {
		t.Fatal("token with TTL 0 must be treated as absent")
	}
}

func TestExpiredTokenIsAbsent(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	base := time.Now()
	cache.now = func() time.Time { return base }
	if err := cache.Put("host", "tok", time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	cache.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := cache.Get("host"); ok {
		t.Fatal("expired token must be treated as absent")
	}
}

func TestNeedsRefreshWithinSlack(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	base := time.Now()
	cache.now = func() time.Time { return base }
	if err := cache.Put("host", "tok", 10*time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if cache.NeedsRefresh("host", time.Minute) {
		t.Fatal("fresh token should not need refresh")
	}

	cache.now = func() time.Time { return base.Add(10*time.Minute - 30*time.Second) }
	if !cache.NeedsRefresh("host", time.Minute) {
		t.Fatal("token within refresh slack must trigger refresh")
	}
}

func TestInvalidateRemovesToken(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := cache.Put("host", "tok", time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := cache.Invalidate("host"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, ok := cache.Get("host"); ok {
		t.Fatal("token should be gone after invalidate")
	}
}

func TestCacheSurvivesReopenEncrypted(t *testing.T) {
	dir := t.TempDir()
	cache, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := cache.Put("host", "persisted", time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	token, ok := reopened.Get("host")
	if !ok || token.Value != "persisted" {
		t.Fatalf("expected persisted token, got %#v (ok=%v)", token, ok)
	}
}
