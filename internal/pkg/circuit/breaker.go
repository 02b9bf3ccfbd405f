package circuit

import (
	"sync"
	"time"

	"contra/internal/logger"
)

// Breaker counts consecutive execution failures. Reaching the threshold
// trips it for a fixed cooldown; while tripped every call is rejected
// locally without touching the exchange. Any recorded success resets the
// counter. Rejections themselves are not failures.
type Breaker struct {
	mu           sync.Mutex
	name         string
	threshold    int
	cooldown     time.Duration
	failures     int
	trippedUntil time.Time

	now func() time.Time
}

func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed right now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.trippedLocked()
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		logger.Debugf("breaker %s: success, reset %d failures", b.name, b.failures)
	}
	b.failures = 0
	b.trippedUntil = time.Time{}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold && !b.trippedLocked() {
		b.trippedUntil = b.now().Add(b.cooldown)
		logger.Warnf("breaker %s: tripped after %d consecutive failures, rejecting calls until %s",
			b.name, b.failures, b.trippedUntil.Format(time.RFC3339))
	}
}

// Tripped reports whether calls are currently rejected.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trippedLocked()
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// TrippedUntil returns the rejection deadline, zero when not tripped.
func (b *Breaker) TrippedUntil() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.trippedLocked() {
		return time.Time{}
	}
	return b.trippedUntil
}

func (b *Breaker) trippedLocked() bool {
	return !b.trippedUntil.IsZero() && b.now().Before(b.trippedUntil)
}
