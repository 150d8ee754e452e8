package ratelimit

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestAllow_StartsFull(t *testing.T) {
	b := New(3, 1, time.Second)

	for i := 0; i < 3; i++ {
		if !b.Allow(t0) {
			t.Fatalf("call %d should be admitted", i+1)
		}
	}
	if b.Allow(t0) {
		t.Error("call 4 should be rejected with an empty bucket")
	}
}

func TestAllow_LazyRefill(t *testing.T) {
	b := New(2, 1, time.Second)

	b.Allow(t0)
	b.Allow(t0)
	if b.Allow(t0) {
		t.Fatal("bucket should be empty")
	}

	// One full interval refills one token.
	if !b.Allow(t0.Add(time.Second)) {
		t.Error("expected one token after one refill interval")
	}
	if b.Allow(t0.Add(time.Second)) {
		t.Error("only one token should have accrued")
	}
}

func TestAllow_FractionalRefill(t *testing.T) {
	b := New(2, 1, time.Second)

	b.Allow(t0)
	b.Allow(t0)

	// Half an interval accrues half a token, not enough to admit.
	if b.Allow(t0.Add(500 * time.Millisecond)) {
		t.Fatal("half a token should not admit")
	}
	// The other half completes the token.
	if !b.Allow(t0.Add(time.Second)) {
		t.Error("fractional refills should accumulate")
	}
}

func TestAllow_CappedAtCapacity(t *testing.T) {
	b := New(2, 1, time.Second)

	b.Allow(t0)
	b.Allow(t0)

	// A long idle period must not accrue more than capacity.
	later := t0.Add(time.Hour)
	admitted := 0
	for i := 0; i < 10; i++ {
		if b.Allow(later) {
			admitted++
		}
	}
	if admitted != 2 {
		t.Errorf("expected 2 admissions after refill to capacity, got %d", admitted)
	}
}

func TestAllow_AdmissionBound(t *testing.T) {
	// Admissions over any interval never exceed
	// capacity + floor(elapsed/refillEvery) * refillAmount.
	b := New(5, 2, 100*time.Millisecond)

	admitted := 0
	for i := 0; i <= 1000; i += 10 {
		if b.Allow(t0.Add(time.Duration(i) * time.Millisecond)) {
			admitted++
		}
	}

	bound := 5 + 10*2 // capacity + 10 elapsed intervals * refillAmount
	if admitted > bound {
		t.Errorf("admitted %d calls, bound is %d", admitted, bound)
	}
}

func TestAllow_ZeroCapacityDisables(t *testing.T) {
	b := New(0, 1, time.Second)

	for i := 0; i < 100; i++ {
		if !b.Allow(t0) {
			t.Fatal("zero capacity must disable rate limiting")
		}
	}
}

func TestAllow_NilBucket(t *testing.T) {
	var b *Bucket
	if !b.Allow(t0) {
		t.Error("nil bucket must admit everything")
	}
}
