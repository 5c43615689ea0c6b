package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucketStartsFull(t *testing.T) {
	b := NewTokenBucket(5, 1)
	now := time.Now()
	for i := 0; i < 5; i++ {
		if !b.Allow(now) {
			t.Fatalf("request %d should be allowed (bucket starts full)", i)
		}
	}
	if b.Allow(now) {
		t.Error("6th immediate request should be denied")
	}
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	b := NewTokenBucket(1, 10) // 10 tokens/sec
	now := time.Now()
	if !b.Allow(now) {
		t.Fatal("first request should be allowed")
	}
	if b.Allow(now) {
		t.Fatal("immediate second request should be denied")
	}
	// 200ms later: 2 tokens refilled, clamped to capacity 1.
	later := now.Add(200 * time.Millisecond)
	if !b.Allow(later) {
		t.Error("request after refill window should be allowed")
	}
}

func TestTokenBucketNeverExceedsCapacity(t *testing.T) {
	b := NewTokenBucket(3, 1000)
	now := time.Now()
	// Huge elapsed time should clamp tokens to capacity, not overflow it.
	farFuture := now.Add(24 * time.Hour)
	granted := 0
	for i := 0; i < 10; i++ {
		if b.Allow(farFuture) {
			granted++
		}
	}
	if granted != 3 {
		t.Errorf("granted = %d, want 3 (capacity bound)", granted)
	}
}

func TestSlidingWindowAdmitsUpToLimit(t *testing.T) {
	w := NewSlidingWindow(time.Second, 3)
	now := time.Now()
	for i := 0; i < 3; i++ {
		if !w.Allow(now) {
			t.Fatalf("request %d should be admitted within limit", i)
		}
	}
	if w.Allow(now) {
		t.Error("4th request in the same instant should be denied")
	}
}

func TestSlidingWindowRollsForwardAfterFullWindow(t *testing.T) {
	w := NewSlidingWindow(time.Second, 2)
	now := time.Now()
	w.Allow(now)
	w.Allow(now)
	if w.Allow(now) {
		t.Fatal("3rd request should be denied within the window")
	}
	// Three full windows later, prior counts should have fully decayed.
	later := now.Add(3 * time.Second)
	if !w.Allow(later) {
		t.Error("request after the window fully elapses should be admitted")
	}
}

func TestSlidingWindowInterpolatesAcrossBoundary(t *testing.T) {
	w := NewSlidingWindow(time.Second, 10)
	now := time.Now()
	for i := 0; i < 10; i++ {
		w.Allow(now)
	}
	// Halfway into the next window: prior window contributes ~50%.
	halfway := now.Add(1500 * time.Millisecond)
	granted := 0
	for i := 0; i < 10; i++ {
		if w.Allow(halfway) {
			granted++
		}
	}
	if granted < 3 || granted > 7 {
		t.Errorf("granted = %d at halfway interpolation, want roughly half of 10", granted)
	}
}
