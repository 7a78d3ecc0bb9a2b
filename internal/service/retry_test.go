package service

import (
	"testing"
	"time"
)

func TestBackoffPolicy_ExponentialGrowth(t *testing.T) {
	p := DefaultBackoffPolicy()

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, expected := range want {
		if got := p.Delay(attempt + 1); got != expected {
			t.Errorf("Delay(%d) = %v, want %v", attempt+1, got, expected)
		}
	}
}

func TestBackoffPolicy_CappedAtMax(t *testing.T) {
	p := NewBackoffPolicy(
		WithBaseDelay(time.Second),
		WithMaxDelay(5*time.Second),
	)
	if got := p.Delay(10); got != 5*time.Second {
		t.Errorf("Delay(10) = %v, want cap 5s", got)
	}
}

func TestBackoffPolicy_ClampsAttempt(t *testing.T) {
	p := DefaultBackoffPolicy()
	if got := p.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want base delay", got)
	}
	if got := p.Delay(-3); got != time.Second {
		t.Errorf("Delay(-3) = %v, want base delay", got)
	}
}

func TestBackoffPolicy_DeterministicWithoutJitter(t *testing.T) {
	p := DefaultBackoffPolicy()
	first := p.Delay(3)
	for i := 0; i < 10; i++ {
		if got := p.Delay(3); got != first {
			t.Fatalf("Delay(3) not deterministic: %v vs %v", got, first)
		}
	}
}

func TestBackoffPolicy_JitterStaysInBand(t *testing.T) {
	p := NewBackoffPolicy(WithJitter(0.5))
	base := 4 * time.Second // attempt 3
	for i := 0; i < 50; i++ {
		got := p.Delay(3)
		if got < base/2 || got > base+base/2 {
			t.Fatalf("Delay(3) = %v, outside jitter band around %v", got, base)
		}
	}
}
