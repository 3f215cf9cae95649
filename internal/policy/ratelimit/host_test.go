package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestHostLimiterWaitsPerHost(t *testing.T) {
	l := NewHostLimiter(HostConfig{
		RPS:   10, // 10 requests per second = 100ms interval
		Burst: 1,
	})
	ctx := context.Background()

	// Consume initial token
	if err := l.Wait(ctx, "https://test.com/a"); err != nil {
		t.Fatal(err)
	}

	// Next one should wait ~100ms
	start := time.Now()
	if err := l.Wait(ctx, "https://test.com/b"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestHostLimiterDifferentHosts(t *testing.T) {
	l := NewHostLimiter(HostConfig{
		RPS:   1, // 1 RPS = 1s interval
		Burst: 1,
	})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.com/1"); err != nil {
		t.Fatal(err)
	}

	// Host B should not be blocked by A
	start := time.Now()
	if err := l.Wait(ctx, "https://b.com/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("host B blocked unexpectedly")
	}
}

func TestHostLimiterUnlimitedAndCanceled(t *testing.T) {
	unlimited := NewHostLimiter(HostConfig{})
	for range 5 {
		if err := unlimited.Wait(context.Background(), "https://c.com"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	slow := NewHostLimiter(HostConfig{RPS: 0.01, Burst: 1})
	if err := slow.Wait(context.Background(), "https://d.com"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := slow.Wait(ctx, "https://d.com"); err == nil {
		t.Fatal("expected error after cancel")
	}
}
