package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/pkg/api"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ChatStream opens a stream with the same target resolution, retry and
// failover rules as Chat. Retries only happen before the first chunk; once
// a chunk has been delivered errors are passed through to the consumer.
func (m *Manager) ChatStream(ctx context.Context, req *api.ChatRequest) (<-chan api.StreamResult, error) {
	t, err := m.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	upstream := req.Clone()
	upstream.Model = t.model
	upstream.Stream = true

	requestID := uuid.NewString()
	ch, n, err := retryLoop(ctx, m, t.provider.ID(), func(number int) (<-chan api.StreamResult, error) {
		return m.openStream(ctx, t.provider, upstream, attempt{requestID: requestID, number: number, streamed: true})
	})
	if err == nil {
		return ch, nil
	}

	fo, ok := m.shouldFailover(ctx, t, err)
	if !ok {
		return nil, err
	}
	ch, err = m.openStream(ctx, fo, upstream, attempt{requestID: requestID, number: n + 1, failover: true, streamed: true})
	if err != nil {
		return nil, err
	}
	m.switchTo(fo.ID())
	return ch, nil
}

// openStream starts one streaming attempt and waits for its first chunk.
// A failure before that point is recorded and returned; after it, the
// attempt is recorded once when the stream ends.
func (m *Manager) openStream(ctx context.Context, p llm.Provider, req *api.ChatRequest, a attempt) (<-chan api.StreamResult, error) {
	sctx, span := m.tracer.Start(ctx, "provider.chat_stream", trace.WithAttributes(
		attribute.String("provider.id", p.ID()),
		attribute.Int("attempt", a.number),
		attribute.Bool("failover", a.failover),
	))
	sctx, cancel := context.WithCancel(sctx)

	start := m.now()
	src, err := p.ChatStream(sctx, req)

	var first api.StreamResult
	if err == nil {
		var timeout <-chan time.Time
		if m.cfg.AttemptTimeout > 0 {
			timer := time.NewTimer(m.cfg.AttemptTimeout)
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case r, ok := <-src:
			switch {
			case !ok:
				err = llm.ProviderError(p.ID(), "stream closed before the first chunk")
			case r.Err != nil:
				err = r.Err
			default:
				first = r
			}
		case <-timeout:
			err = llm.Timeout(p.ID(), context.DeadlineExceeded)
		case <-ctx.Done():
			cancel()
			span.End()
			return nil, ctx.Err()
		}
	}

	if err != nil {
		cancel()
		if errors.Is(ctx.Err(), context.Canceled) {
			span.End()
			return nil, ctx.Err()
		}
		classified := llm.Classify(p.ID(), err)
		recordSpanError(span, classified)
		span.End()
		m.record(p.ID(), req.Model, a, m.now().Sub(start), nil, "", classified)
		return nil, classified
	}

	out := make(chan api.StreamResult)
	go m.relay(ctx, cancel, span, p.ID(), req.Model, a, start, first, src, out)
	return out, nil
}

// relay forwards chunks to the consumer and records the attempt when the
// upstream stream ends.
func (m *Manager) relay(
	ctx context.Context,
	cancel context.CancelFunc,
	span trace.Span,
	id, modelID string,
	a attempt,
	start time.Time,
	first api.StreamResult,
	src <-chan api.StreamResult,
	out chan<- api.StreamResult,
) {
	defer close(out)
	defer cancel()
	defer span.End()

	var (
		usage     *api.ResponseUsage
		finish    api.FinishReason
		streamErr error
	)
	forward := func(r api.StreamResult) bool {
		if r.Err != nil {
			streamErr = r.Err
		} else if r.Response != nil {
			if r.Response.Provider == "" {
				r.Response.Provider = id
			}
			if r.Response.Usage != nil {
				usage = r.Response.Usage
			}
			if f := r.Response.Finish(); f != "" {
				finish = f
			}
		}
		select {
		case out <- r:
			return r.Err == nil
		case <-ctx.Done():
			return false
		}
	}

	if forward(first) {
		for r := range src {
			if !forward(r) {
				break
			}
		}
	}

	elapsed := m.now().Sub(start)
	if streamErr == nil && errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	if streamErr != nil {
		classified := llm.Classify(id, streamErr)
		recordSpanError(span, classified)
		m.record(id, modelID, a, elapsed, usage, finish, classified)
		return
	}
	m.record(id, modelID, a, elapsed, usage, finish, nil)
}
