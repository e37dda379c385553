package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nulzo/model-curator/internal/httpclient"
)

// ErrorKind is the failure taxonomy the retry policy keys on.
type ErrorKind string

const (
	KindAuth         ErrorKind = "auth"
	KindRateLimited  ErrorKind = "rate_limited"
	KindInvalidModel ErrorKind = "invalid_model"
	KindTimeout      ErrorKind = "timeout"
	KindProvider     ErrorKind = "provider"
)

// Error is returned by every provider operation routed through the gateway.
type Error struct {
	Kind       ErrorKind
	Provider   string
	Message    string
	StatusCode int
	// RetryAfter is the cooldown reported by the provider, if any.
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindAuth}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Provider == "" || t.Provider == e.Provider)
}

func AuthError(provider, msg string) *Error {
	return &Error{Kind: KindAuth, Provider: provider, Message: msg, StatusCode: http.StatusUnauthorized}
}

func RateLimited(provider string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Provider:   provider,
		Message:    "rate limited",
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

func InvalidModel(provider, model string) *Error {
	return &Error{Kind: KindInvalidModel, Provider: provider, Message: fmt.Sprintf("model %q not available", model), StatusCode: http.StatusNotFound}
}

func Timeout(provider string, cause error) *Error {
	return &Error{Kind: KindTimeout, Provider: provider, Message: "request timed out", StatusCode: http.StatusGatewayTimeout, Cause: cause}
}

func ProviderError(provider, msg string) *Error {
	return &Error{Kind: KindProvider, Provider: provider, Message: msg, StatusCode: http.StatusBadGateway}
}

// Classify maps any error from an adapter into the taxonomy. Values that are
// already *Error pass through unchanged.
func Classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var le *Error
	if errors.As(err, &le) {
		if le.Provider == "" {
			cp := *le
			cp.Provider = provider
			return &cp
		}
		return le
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(provider, err)
	}

	var upstream *httpclient.UpstreamError
	if errors.As(err, &upstream) {
		out := &Error{
			Provider:   provider,
			StatusCode: upstream.StatusCode,
			Message:    upstreamMessage(upstream),
			Cause:      err,
		}
		switch upstream.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			out.Kind = KindAuth
		case http.StatusTooManyRequests:
			out.Kind = KindRateLimited
			out.RetryAfter = upstream.RetryAfter
		case http.StatusNotFound:
			out.Kind = KindInvalidModel
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			out.Kind = KindTimeout
		default:
			out.Kind = KindProvider
		}
		return out
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout(provider, err)
	}

	return &Error{Kind: KindProvider, Provider: provider, Message: err.Error(), StatusCode: http.StatusBadGateway, Cause: err}
}

// KindOf reports the taxonomy kind of err, KindProvider for foreign errors.
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindProvider
}

// IsRetryable reports whether another attempt could succeed. Auth and
// invalid-model failures are request or credential problems; caller
// cancellation is final too.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindAuth, KindInvalidModel:
		return false
	default:
		return true
	}
}

// RetryAfterOf returns the provider cooldown carried by err.
func RetryAfterOf(err error) time.Duration {
	var le *Error
	if errors.As(err, &le) && le.Kind == KindRateLimited {
		return le.RetryAfter
	}
	return 0
}
