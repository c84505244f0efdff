package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestAllowBurstThenLimited(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := l.Allow("s1"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := l.Allow("s1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("4th request: got %v, want ErrRateLimited", err)
	}

	// Another key has its own bucket.
	if err := l.Allow("s2"); err != nil {
		t.Fatalf("s2: %v", err)
	}

	// One token per second at 60/min.
	now = now.Add(time.Second)
	if err := l.Allow("s1"); err != nil {
		t.Fatalf("after refill: %v", err)
	}
	if err := l.Allow("s1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second after refill: got %v, want ErrRateLimited", err)
	}
}

func TestUnlimited(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Allow("s1"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if l.Len() != 0 {
		t.Errorf("unlimited limiter tracked %d keys", l.Len())
	}

	var nilLimiter *Limiter
	if err := nilLimiter.Allow("x"); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}
	nilLimiter.Forget("x")
}

func TestForget(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 1})
	if err := l.Allow("s1"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("s1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
	l.Forget("s1")
	if l.Len() != 0 {
		t.Errorf("Len() = %d after Forget", l.Len())
	}
	if err := l.Allow("s1"); err != nil {
		t.Fatalf("after Forget: %v", err)
	}
}
