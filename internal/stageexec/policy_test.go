package stageexec

import (
	"testing"
	"time"
)

func TestPolicyWithDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	if p.MaxAttempts != 3 {
		t.Fatalf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if p.Timeout != 2*time.Minute {
		t.Fatalf("Timeout = %s, want 2m", p.Timeout)
	}
	if p.RetryBase != 2*time.Second {
		t.Fatalf("RetryBase = %s, want 2s", p.RetryBase)
	}
	if p.RetryMax != 60*time.Second {
		t.Fatalf("RetryMax = %s, want 60s", p.RetryMax)
	}

	custom := Policy{MaxAttempts: 5, Timeout: time.Minute, RetryBase: time.Second, RetryMax: 10 * time.Second}.withDefaults()
	if custom.MaxAttempts != 5 || custom.Timeout != time.Minute {
		t.Fatalf("withDefaults overwrote explicit values: %+v", custom)
	}
}

func TestPolicyBackoffDoublesAndCaps(t *testing.T) {
	p := Policy{RetryBase: 2 * time.Second, RetryMax: 60 * time.Second}.withDefaults()
	unitJitter := func() float64 { return 0.5 }

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 3, want: 8 * time.Second},
		{attempt: 4, want: 16 * time.Second},
		{attempt: 5, want: 32 * time.Second},
		{attempt: 6, want: 60 * time.Second},
		{attempt: 12, want: 60 * time.Second},
	}
	for _, tc := range cases {
		if got := p.backoff(tc.attempt, unitJitter); got != tc.want {
			t.Errorf("backoff(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestPolicyBackoffAppliesJitter(t *testing.T) {
	p := Policy{RetryBase: 4 * time.Second, RetryMax: 60 * time.Second}.withDefaults()

	if got := p.backoff(1, func() float64 { return 0 }); got != 2*time.Second {
		t.Fatalf("low jitter backoff = %s, want 2s", got)
	}
	if got := p.backoff(1, func() float64 { return 0.999 }); got < 4*time.Second || got >= 6*time.Second {
		t.Fatalf("high jitter backoff = %s, want within [4s, 6s)", got)
	}
	if got := p.backoff(0, func() float64 { return 0.5 }); got != 4*time.Second {
		t.Fatalf("clamped attempt backoff = %s, want 4s", got)
	}
}
