package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(ctx, "1.2.3.4"); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	ok, retry := l.Allow(ctx, "1.2.3.4")
	if ok {
		t.Fatal("third request should be rejected")
	}
	if retry != time.Minute {
		t.Errorf("retryAfter = %v, want 1m", retry)
	}

	if ok, _ := l.Allow(ctx, "5.6.7.8"); !ok {
		t.Error("other keys have their own budget")
	}

	now = now.Add(time.Minute)
	if ok, _ := l.Allow(ctx, "1.2.3.4"); !ok {
		t.Error("window should reset")
	}
}

func TestRedisLimiterFailsOpenWithoutClient(t *testing.T) {
	l := NewRedisLimiter(nil, "", 1, time.Second)
	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow(context.Background(), "k"); !ok {
			t.Fatal("nil client should always allow")
		}
	}
}
