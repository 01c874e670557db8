// Package retry classifies pipeline stage failures and computes backoff
// delays. Classification and backoff are pure functions of the error and
// the attempt count; no timers live here, so the package tests without a
// real clock.
package retry

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

// Class is the failure category assigned to a stage error.
type Class string

const (
	// Transient failures are retried with backoff.
	Transient Class = "transient"
	// Permanent failures dead-letter immediately, no retries.
	Permanent Class = "permanent"
	// Unknown failures are treated conservatively as retryable up to the
	// max attempt count.
	Unknown Class = "unknown"
)

// Retryable reports whether a failure of this class should be retried.
func (c Class) Retryable() bool {
	return c == Transient || c == Unknown
}

// transientIndicators mark error shapes that tend to resolve on their
// own: network trouble, timeouts, throttling.
var transientIndicators = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"network",
	"connection refused",
	"connection reset",
	"rate limit",
	"too many requests",
	"429",
	"503",
	"service unavailable",
	"temporary",
	"unavailable",
}

// permanentIndicators mark error shapes that will fail identically on
// every attempt.
var permanentIndicators = []string{
	"validation",
	"invalid",
	"malformed",
	"unparseable",
	"not found",
	"unsupported",
	"schema",
	"401",
	"403",
	"unauthorized",
	"forbidden",
}

// Classify buckets an error as transient, permanent, or unknown based on
// case-insensitive substring indicators. Permanent indicators win over
// transient ones so a "invalid response after timeout" style error does
// not get retried forever.
func Classify(err error) Class {
	if err == nil {
		return Unknown
	}

	msg := strings.ToLower(err.Error())
	for _, ind := range permanentIndicators {
		if strings.Contains(msg, ind) {
			return Permanent
		}
	}
	for _, ind := range transientIndicators {
		if strings.Contains(msg, ind) {
			return Transient
		}
	}
	return Unknown
}

// Policy computes retry delays: exponential backoff with jitter.
type Policy struct {
	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// MaxAttempts is the number of attempts before dead-lettering.
	MaxAttempts int
	// JitterFraction is the maximum fraction of the delay added or
	// subtracted as jitter (0.2 = ±20%).
	JitterFraction float64

	// rand yields jitter in [0,1); injectable for deterministic tests.
	rand func() float64
}

// DefaultPolicy returns the standard backoff policy: 1s base, 30s cap,
// 3 attempts, ±20% jitter.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		MaxAttempts:    3,
		JitterFraction: 0.2,
	}
}

// WithRand returns a copy of the policy using the given jitter source.
func (p Policy) WithRand(r func() float64) Policy {
	p.rand = r
	return p
}

// NextDelay returns the backoff before retrying after the given attempt
// (1-based): base * 2^(attempt-1), capped at MaxDelay, ± jitter.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	max := p.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}

	factor := math.Pow(2, float64(attempt-1))
	delay := time.Duration(float64(base) * factor)
	if delay > max || delay <= 0 {
		delay = max
	}

	// Jitter spreads concurrent retries so they do not stampede.
	if p.JitterFraction > 0 {
		r := p.rand
		if r == nil {
			r = rand.Float64
		}
		jitter := (2*r() - 1) * p.JitterFraction * float64(delay)
		delay += time.Duration(jitter)
		if delay < 0 {
			delay = 0
		}
	}

	return delay
}

// Exhausted reports whether the given attempt count has used up the
// retry budget.
func (p Policy) Exhausted(attempt int) bool {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return attempt >= maxAttempts
}
