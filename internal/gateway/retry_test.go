package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nulzo/model-curator/internal/llm"
	"github.com/stretchr/testify/assert"
)

func noJitter() RetryPolicy {
	p := DefaultRetryPolicy()
	p.Jitter = 0
	return p
}

func TestRetryPolicy_BackoffGrowsAndCaps(t *testing.T) {
	p := noJitter()
	p.MaxDelay = time.Second

	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(4))
	assert.Equal(t, time.Second, p.Backoff(10))
}

func TestRetryPolicy_JitterStaysInBounds(t *testing.T) {
	p := DefaultRetryPolicy()
	for i := 0; i < 100; i++ {
		d := p.Backoff(2)
		assert.GreaterOrEqual(t, d, 360*time.Millisecond)
		assert.LessOrEqual(t, d, 440*time.Millisecond)
	}
}

func TestRetryPolicy_JitterNeverExceedsMaxDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Jitter = 0.5
	for i := 0; i < 200; i++ {
		d := p.Backoff(10)
		assert.LessOrEqual(t, d, p.MaxDelay)
		assert.GreaterOrEqual(t, d, p.MaxDelay/2)
	}
}

func TestRetryPolicy_Next(t *testing.T) {
	p := noJitter()

	tests := []struct {
		name    string
		attempt int
		err     error
		delay   time.Duration
		retry   bool
	}{
		{"provider error retries", 1, llm.ProviderError("p", "boom"), 200 * time.Millisecond, true},
		{"timeout retries", 2, llm.Timeout("p", context.DeadlineExceeded), 400 * time.Millisecond, true},
		{"attempts exhausted", 3, llm.ProviderError("p", "boom"), 0, false},
		{"auth never retries", 1, llm.AuthError("p", "bad key"), 0, false},
		{"invalid model never retries", 1, llm.InvalidModel("p", "nope"), 0, false},
		{"cancellation never retries", 1, context.Canceled, 0, false},
		{"cooldown longer than backoff", 1, llm.RateLimited("p", 3*time.Second), 3 * time.Second, true},
		{"cooldown shorter than backoff", 2, llm.RateLimited("p", 100*time.Millisecond), 400 * time.Millisecond, true},
		{"cooldown beyond the cap", 1, llm.RateLimited("p", time.Minute), 0, false},
		{"unclassified errors retry", 1, errors.New("connection reset"), 200 * time.Millisecond, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, retry := p.Next(tt.attempt, tt.err)
			assert.Equal(t, tt.retry, retry)
			assert.Equal(t, tt.delay, delay)
		})
	}
}

func TestRetryPolicy_SingleAttempt(t *testing.T) {
	p := noJitter()
	p.MaxAttempts = 1
	_, retry := p.Next(1, llm.ProviderError("p", "boom"))
	assert.False(t, retry)
}

func TestSleepCtx_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}
