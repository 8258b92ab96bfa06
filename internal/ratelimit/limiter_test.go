package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_BurstThenDeny(t *testing.T) {
	l := NewLimiter(Rule{Every: time.Hour, Burst: 2})

	if !l.Allow("r-1") || !l.Allow("r-1") {
		t.Fatal("expected the burst to be allowed")
	}
	if l.Allow("r-1") {
		t.Fatal("expected denial after the burst is spent")
	}
}

func TestLimiter_PerIdentifier(t *testing.T) {
	l := NewLimiter(Rule{Every: time.Hour, Burst: 1})

	if !l.Allow("r-1") {
		t.Fatal("expected first event allowed for r-1")
	}
	if !l.Allow("r-2") {
		t.Fatal("expected r-2 unaffected by r-1's bucket")
	}
	if l.Allow("r-1") {
		t.Fatal("expected r-1 exhausted")
	}
}

func TestLimiter_ForgetResets(t *testing.T) {
	l := NewLimiter(Rule{Every: time.Hour, Burst: 1})

	l.Allow("r-1")
	l.Forget("r-1")

	if !l.Allow("r-1") {
		t.Fatal("expected a fresh bucket after Forget")
	}
}

func TestLimiter_Refill(t *testing.T) {
	l := NewLimiter(Rule{Every: 10 * time.Millisecond, Burst: 1})

	if !l.Allow("r-1") {
		t.Fatal("expected first event allowed")
	}
	if l.Allow("r-1") {
		t.Fatal("expected immediate second event denied")
	}

	time.Sleep(25 * time.Millisecond)
	if !l.Allow("r-1") {
		t.Fatal("expected the bucket refilled after the window")
	}
}
