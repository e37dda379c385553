package v1

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/nulzo/model-curator/internal/evaluation"
	"github.com/nulzo/model-curator/internal/gateway"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/internal/server/middleware"
	"github.com/nulzo/model-curator/pkg/api"
)

// problemFor maps gateway and provider errors onto HTTP problems.
func problemFor(err error) *api.Problem {
	var problem *api.Problem
	if errors.As(err, &problem) {
		return problem
	}

	switch {
	case errors.Is(err, gateway.ErrProviderNotFound):
		return api.NotFoundError(err.Error())
	case errors.Is(err, gateway.ErrNoProviderAvailable), errors.Is(err, gateway.ErrProviderUnavailable):
		return api.NewError(http.StatusServiceUnavailable, "Service Unavailable", err.Error(), api.WithLog(err))
	case errors.Is(err, evaluation.ErrStale):
		return api.NotFoundError(err.Error())
	case errors.Is(err, context.Canceled):
		return api.NewError(499, "Client Closed Request", "The request was cancelled.")
	}

	var le *llm.Error
	if !errors.As(err, &le) {
		return api.InternalError("Failed to process request", err)
	}

	switch le.Kind {
	case llm.KindAuth:
		return api.NewError(http.StatusUnauthorized, "Upstream Authentication Failed", le.Error(), api.WithLog(err))
	case llm.KindRateLimited:
		opts := []api.ProblemOption{api.WithLog(err)}
		if le.RetryAfter > 0 {
			opts = append(opts, api.WithExtension(middleware.RetryAfterExtension, int(math.Ceil(le.RetryAfter.Seconds()))))
		}
		return api.RateLimitError(le.Error(), opts...)
	case llm.KindInvalidModel:
		return api.BadRequestError(le.Error(), api.WithLog(err))
	case llm.KindTimeout:
		return api.TimeoutError(le.Error(), err)
	default:
		return api.ProviderError(le.Error(), err)
	}
}
