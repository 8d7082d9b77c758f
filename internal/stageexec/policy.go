package stageexec

import (
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 2 * time.Minute
	defaultRetryBase   = 2 * time.Second
	defaultRetryMax    = 60 * time.Second
)

// Policy bounds one stage's attempt loop: how many tries an item gets, how
// long a single try may run, and how retries back off. Coordinators build
// one per stage from config.
type Policy struct {
	MaxAttempts int
	Timeout     time.Duration
	RetryBase   time.Duration
	RetryMax    time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.Timeout <= 0 {
		p.Timeout = defaultTimeout
	}
	if p.RetryBase <= 0 {
		p.RetryBase = defaultRetryBase
	}
	if p.RetryMax <= 0 {
		p.RetryMax = defaultRetryMax
	}
	return p
}

// backoff returns the delay before the next try after attempt failures.
// The exponential delay is capped at RetryMax, then scaled by a jitter
// factor in [0.5, 1.5) so concurrently failing items do not retry in
// lockstep against the same dependency.
func (p Policy) backoff(attempt int, jitter func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.RetryBase
	for i := 1; i < attempt; i++ {
		if delay > p.RetryMax/2 {
			delay = p.RetryMax
			break
		}
		delay *= 2
	}
	if delay > p.RetryMax {
		delay = p.RetryMax
	}
	scale := 0.5 + jitter()
	return time.Duration(float64(delay) * scale)
}
