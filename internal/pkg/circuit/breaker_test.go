package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	b := NewBreaker("test", 5, 5*time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerTripsAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.True(t, b.Allow(), "must stay closed below threshold (failure %d)", i+1)
	}
	b.RecordFailure()
	assert.False(t, b.Allow())
	assert.True(t, b.Tripped())
	assert.Equal(t, 5, b.Failures())
}

func TestBreakerRejectsUntilCooldownExpires(t *testing.T) {
	b, now := newTestBreaker(t)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.True(t, b.Tripped())

	*now = now.Add(4 * time.Minute)
	assert.False(t, b.Allow())

	*now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow(), "next call after expiry must be allowed")
	// expiry alone does not reset the counter
	assert.Equal(t, 5, b.Failures())
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b, now := newTestBreaker(t)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	*now = now.Add(6 * time.Minute)
	require.True(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, 0, b.Failures())
	assert.False(t, b.Tripped())
	assert.True(t, b.TrippedUntil().IsZero())

	// a single new failure must not trip again
	b.RecordFailure()
	assert.True(t, b.Allow())
}

func TestBreakerFailureWhileTrippedKeepsDeadline(t *testing.T) {
	b, now := newTestBreaker(t)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	deadline := b.TrippedUntil()
	*now = now.Add(time.Minute)
	b.RecordFailure()
	assert.Equal(t, deadline, b.TrippedUntil(), "extra failures must not extend the deadline")
}
