package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil error", nil, Unknown},
		{"timeout", errors.New("request timeout after 30s"), Transient},
		{"deadline", errors.New("context deadline exceeded"), Transient},
		{"connection refused", errors.New("dial tcp: connection refused"), Transient},
		{"rate limited", errors.New("429 too many requests"), Transient},
		{"service unavailable", errors.New("upstream returned 503"), Transient},
		{"validation", errors.New("validation failed: missing field"), Permanent},
		{"malformed output", errors.New("malformed JSON in stage output"), Permanent},
		{"unauthorized", errors.New("401 unauthorized"), Permanent},
		{"schema mismatch", errors.New("output does not match schema"), Permanent},
		{"unknown shape", errors.New("something odd happened"), Unknown},
		{
			// Permanent indicators win so a bad response wrapped in retry
			// noise is not retried forever.
			name: "permanent beats transient",
			err:  errors.New("invalid response received after timeout"),
			want: Permanent,
		},
		{"wrapped transient", fmt.Errorf("stage draft: %w", errors.New("connection reset by peer")), Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassRetryable(t *testing.T) {
	assert.True(t, Transient.Retryable())
	assert.True(t, Unknown.Retryable())
	assert.False(t, Permanent.Retryable())
}

func TestNextDelayExponentialGrowth(t *testing.T) {
	// Fixed jitter source at 0.5 makes the jitter term zero.
	policy := DefaultPolicy().WithRand(func() float64 { return 0.5 })

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 8*time.Second, policy.NextDelay(4))
}

func TestNextDelayCapped(t *testing.T) {
	policy := DefaultPolicy().WithRand(func() float64 { return 0.5 })

	assert.Equal(t, 30*time.Second, policy.NextDelay(6), "2^5 = 32s caps at 30s")
	assert.Equal(t, 30*time.Second, policy.NextDelay(50), "huge attempts must not overflow")
}

func TestNextDelayJitterBounds(t *testing.T) {
	policy := DefaultPolicy() // real rand

	for attempt := 1; attempt <= 5; attempt++ {
		base := time.Duration(float64(time.Second) * float64(int(1)<<uint(attempt-1)))
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		lo := time.Duration(float64(base) * 0.8)
		hi := time.Duration(float64(base) * 1.2)

		for i := 0; i < 100; i++ {
			d := policy.NextDelay(attempt)
			assert.GreaterOrEqual(t, d, lo, "attempt %d", attempt)
			assert.LessOrEqual(t, d, hi, "attempt %d", attempt)
		}
	}
}

func TestNextDelayExtremeJitter(t *testing.T) {
	// Full negative jitter at the extreme of the rand range.
	policy := Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, MaxAttempts: 3, JitterFraction: 0.2}

	low := policy.WithRand(func() float64 { return 0 }).NextDelay(1)
	high := policy.WithRand(func() float64 { return 0.999999 }).NextDelay(1)

	assert.InDelta(t, float64(800*time.Millisecond), float64(low), float64(time.Millisecond))
	assert.InDelta(t, float64(1200*time.Millisecond), float64(high), float64(2*time.Millisecond))
}

func TestNextDelayInvalidAttempt(t *testing.T) {
	policy := DefaultPolicy().WithRand(func() float64 { return 0.5 })
	assert.Equal(t, policy.NextDelay(1), policy.NextDelay(0), "attempts below 1 clamp to 1")
	assert.Equal(t, policy.NextDelay(1), policy.NextDelay(-3))
}

func TestExhausted(t *testing.T) {
	policy := DefaultPolicy()

	assert.False(t, policy.Exhausted(1))
	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))
	assert.True(t, policy.Exhausted(4))

	zero := Policy{}
	assert.True(t, zero.Exhausted(3), "zero policy defaults to 3 attempts")
}
