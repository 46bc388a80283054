package core

import (
	"math/rand"
	"sync"
	"time"
)

// ReconnectPolicy controls the delay between reconnection attempts.
// It is pure configuration and carries no mutable state.
type ReconnectPolicy struct {
	// InitialDelay is the delay before the first reconnect attempt.
	InitialDelay time.Duration

	// MaxDelay caps the exponentially growing delay.
	MaxDelay time.Duration

	// Factor multiplies the delay after each consecutive failure.
	Factor float64

	// Jitter is the fraction of the delay randomized in both directions,
	// in [0, 1]. Jitter spreads reconnects of many workers sharing a broker.
	Jitter float64
}

// DefaultReconnectPolicy mirrors the defaults most gateways run with.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Factor:       2,
		Jitter:       0.2,
	}
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = 200 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Factor <= 1 {
		p.Factor = 2
	}
	return p
}

// backoff tracks the current reconnect delay for one supervisor.
type backoff struct {
	mu      sync.Mutex
	current time.Duration
	policy  ReconnectPolicy
}

func newBackoff(p ReconnectPolicy) *backoff {
	return &backoff{policy: p.withDefaults()}
}

// Next returns the delay to wait before the next attempt and advances the
// ladder: initial, initial*factor, ... capped at max, with jitter applied.
func (b *backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current <= 0 {
		b.current = b.policy.InitialDelay
	} else {
		b.current = time.Duration(float64(b.current) * b.policy.Factor)
		if b.current > b.policy.MaxDelay {
			b.current = b.policy.MaxDelay
		}
	}
	interval := b.current
	if b.policy.Jitter > 0 {
		span := float64(interval) * b.policy.Jitter
		interval += time.Duration((rand.Float64()*2 - 1) * span)
		if interval < 0 {
			interval = b.policy.InitialDelay
		}
	}
	return interval
}

// Reset restarts the ladder after a successful connection.
func (b *backoff) Reset() {
	b.mu.Lock()
	b.current = 0
	b.mu.Unlock()
}
