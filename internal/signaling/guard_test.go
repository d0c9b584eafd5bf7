package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryGuardSuppressesWithinRetention(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := g.Claim(ctx, "r", "c"); !ok {
		t.Fatal("first claim should succeed")
	}
	if ok, _ := g.Claim(ctx, "r", "c"); ok {
		t.Fatal("duplicate claim should be suppressed")
	}
	if ok, _ := g.Claim(ctx, "c", "r"); !ok {
		t.Fatal("reverse pair is a distinct key")
	}

	now = now.Add(time.Minute)
	if ok, _ := g.Claim(ctx, "r", "c"); !ok {
		t.Fatal("claim after retention should succeed")
	}
}

func TestMemoryGuardSweep(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = g.Claim(ctx, "r1", "c")
	now = now.Add(30 * time.Second)
	_, _ = g.Claim(ctx, "r2", "c")
	now = now.Add(45 * time.Second)

	removed, err := g.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 || g.Len() != 1 {
		t.Fatalf("expected 1 removed and 1 kept, got removed=%d len=%d", removed, g.Len())
	}
}

func TestMemoryGuardWithoutRetentionKeepsRecords(t *testing.T) {
	g := NewMemoryGuard(0)
	ctx := context.Background()
	_, _ = g.Claim(ctx, "r", "c")

	if removed, _ := g.Sweep(ctx); removed != 0 {
		t.Fatalf("expected nothing swept, got %d", removed)
	}
	if ok, _ := g.Claim(ctx, "r", "c"); ok {
		t.Fatal("record must persist without retention")
	}
}

func TestRedisGuardClaim(t *testing.T) {
	s := miniredis.RunT(t)
	g, err := NewRedisGuard("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisGuard failed: %v", err)
	}
	defer g.Close()
	ctx := context.Background()

	if ok, err := g.Claim(ctx, "r", "c"); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	if ok, err := g.Claim(ctx, "r", "c"); err != nil || ok {
		t.Fatalf("duplicate claim: ok=%v err=%v", ok, err)
	}
	if ttl := s.TTL("accept:r:c"); ttl != time.Minute {
		t.Fatalf("expected 1m TTL, got %v", ttl)
	}

	s.FastForward(time.Minute + time.Second)
	if ok, err := g.Claim(ctx, "r", "c"); err != nil || !ok {
		t.Fatalf("claim after expiry: ok=%v err=%v", ok, err)
	}
}

func TestNewRedisGuardBadURL(t *testing.T) {
	if _, err := NewRedisGuard("not-a-url", time.Minute); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStartSweeperStopsOnCancel(t *testing.T) {
	g := NewMemoryGuard(time.Millisecond)
	_, _ = g.Claim(context.Background(), "r", "c")

	ctx, cancel := context.WithCancel(context.Background())
	StartSweeper(ctx, g, 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for g.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not expire record")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
}
