package service

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy computes retry delays. Delay is a pure function of the
// attempt number; jitter is an explicit separate knob and stays off by
// default so recovery decisions are reproducible.
type BackoffPolicy struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0 to 1.0
}

// DefaultBackoffPolicy returns the default backoff policy.
func DefaultBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

// BackoffOption configures a backoff policy.
type BackoffOption func(*BackoffPolicy)

// WithBaseDelay sets the initial delay.
func WithBaseDelay(d time.Duration) BackoffOption {
	return func(p *BackoffPolicy) {
		p.BaseDelay = d
	}
}

// WithMaxDelay sets the maximum delay.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(p *BackoffPolicy) {
		p.MaxDelay = d
	}
}

// WithMultiplier sets the exponential multiplier.
func WithMultiplier(m float64) BackoffOption {
	return func(p *BackoffPolicy) {
		p.Multiplier = m
	}
}

// WithJitter sets the jitter factor.
func WithJitter(factor float64) BackoffOption {
	return func(p *BackoffPolicy) {
		p.JitterFactor = factor
	}
}

// NewBackoffPolicy creates a backoff policy.
func NewBackoffPolicy(opts ...BackoffOption) *BackoffPolicy {
	p := DefaultBackoffPolicy()
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Delay computes the delay before the given retry attempt (1-based):
// base × multiplier^(attempt−1), capped at MaxDelay.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.JitterFactor > 0 {
		jitter := delay * p.JitterFactor
		delay += (rand.Float64()*2 - 1) * jitter
	}
	return time.Duration(delay)
}
