package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/nulzo/model-curator/internal/httpclient"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindTimeout},
		{"401", &httpclient.UpstreamError{StatusCode: http.StatusUnauthorized}, KindAuth},
		{"403", &httpclient.UpstreamError{StatusCode: http.StatusForbidden}, KindAuth},
		{"429", &httpclient.UpstreamError{StatusCode: http.StatusTooManyRequests, RetryAfter: time.Second}, KindRateLimited},
		{"404", &httpclient.UpstreamError{StatusCode: http.StatusNotFound}, KindInvalidModel},
		{"408", &httpclient.UpstreamError{StatusCode: http.StatusRequestTimeout}, KindTimeout},
		{"500", &httpclient.UpstreamError{StatusCode: http.StatusInternalServerError}, KindProvider},
		{"plain", errors.New("connection reset"), KindProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("p1", tt.err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, "p1", got.Provider)
		})
	}
}

func TestClassify_PassThrough(t *testing.T) {
	orig := RateLimited("p1", 2*time.Second)
	assert.Same(t, orig, Classify("p2", orig))
	assert.Nil(t, Classify("p1", nil))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(AuthError("p", "bad key")))
	assert.False(t, IsRetryable(InvalidModel("p", "m")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(RateLimited("p", 0)))
	assert.True(t, IsRetryable(Timeout("p", nil)))
	assert.True(t, IsRetryable(ProviderError("p", "boom")))
	assert.True(t, IsRetryable(errors.New("unknown")))
}

func TestRetryAfterOf(t *testing.T) {
	assert.Equal(t, 5*time.Second, RetryAfterOf(fmt.Errorf("x: %w", RateLimited("p", 5*time.Second))))
	assert.Zero(t, RetryAfterOf(ProviderError("p", "x")))
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("call: %w", AuthError("p1", "denied"))
	assert.ErrorIs(t, err, &Error{Kind: KindAuth})
	assert.NotErrorIs(t, err, &Error{Kind: KindTimeout})
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hi"))
	assert.Equal(t, 3, EstimateTokens("a b c"))
}
