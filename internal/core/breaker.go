package core

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerHalfOpen
	breakerOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerHalfOpen:
		return "half-open"
	case breakerOpen:
		return "open"
	default:
		return "closed"
	}
}

// circuitBreaker shields the remote model. It opens after `threshold`
// consecutive failures, stays open for `cooldown`, then admits a single
// probe; the probe's outcome decides between closing again and another
// full cooldown.
type circuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	state    breakerState
	failures int
	openedAt time.Time
	probing  bool
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a remote attempt may proceed right now. When the
// cooldown of an open breaker has elapsed it reserves the half-open probe
// slot for the caller; every outcome method releases that slot.
func (b *circuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = breakerHalfOpen
		b.probing = true
		return true
	case breakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Success records a healthy remote round trip and closes the breaker.
func (b *circuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
	b.probing = false
}

// Failure records a remote failure. In half-open it reopens immediately;
// in closed it opens once the consecutive-failure threshold is reached.
func (b *circuitBreaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	switch b.state {
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openedAt = b.now()
	case breakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = breakerOpen
			b.openedAt = b.now()
		}
	}
}

// Ignore releases a reserved probe slot without judging backend health.
// Used for outcomes that say nothing about the remote side, like a
// request our own validation rejected, or an admitted call that was never
// sent because the quota denied it.
func (b *circuitBreaker) Ignore() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

func (b *circuitBreaker) State() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// selectBackend decides which path answers a request. Remote requires a
// configured client, a breaker willing to let the call through, and quota
// headroom; anything else falls back to the deterministic generator.
func selectBackend(remoteConfigured, remoteHealthy, quotaAvailable bool) Backend {
	if remoteConfigured && remoteHealthy && quotaAvailable {
		return BackendRemote
	}
	return BackendFallback
}
