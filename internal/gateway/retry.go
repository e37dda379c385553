package gateway

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/nulzo/model-curator/internal/llm"
)

// RetryPolicy is a pure function of attempt number and error kind.
type RetryPolicy struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter spreads delays by up to this fraction (0.0-1.0).
	Jitter float64
	// MaxCooldown is the longest provider-reported cooldown worth waiting
	// for; longer ones end the retry loop so failover can take over.
	MaxCooldown time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
		MaxCooldown:  30 * time.Second,
	}
}

// Next decides whether failed attempt (1-based) is followed by another and
// how long to wait first. Auth and invalid-model errors never retry. A
// rate-limit cooldown is honored when it exceeds the backoff, but one longer
// than MaxCooldown ends the retries so the caller can fail over instead of
// waiting it out.
func (p RetryPolicy) Next(attempt int, err error) (time.Duration, bool) {
	if attempt >= p.MaxAttempts || !llm.IsRetryable(err) {
		return 0, false
	}

	delay := p.Backoff(attempt)
	if cooldown := llm.RetryAfterOf(err); cooldown > 0 {
		if p.MaxCooldown > 0 && cooldown > p.MaxCooldown {
			return 0, false
		}
		if cooldown > delay {
			delay = cooldown
		}
	}
	return delay, true
}

// Backoff is InitialDelay * Multiplier^(attempt-1), jittered and never above
// MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
