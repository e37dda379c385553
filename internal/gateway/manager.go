package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nulzo/model-curator/internal/analytics"
	"github.com/nulzo/model-curator/internal/curation"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/internal/monitor"
	"github.com/nulzo/model-curator/internal/platform/metrics"
	"github.com/nulzo/model-curator/internal/store/model"
	"github.com/nulzo/model-curator/pkg/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrNoProviderAvailable = errors.New("no provider available")
	ErrProviderUnavailable = errors.New("provider is disconnected")
)

const tracerName = "github.com/nulzo/model-curator/internal/gateway"

// Config holds the Manager's tuning knobs.
type Config struct {
	Curation   curation.Config
	Thresholds monitor.Thresholds
	Retry      RetryPolicy
	// AttemptTimeout bounds a single chat attempt, and the wait for the
	// first chunk of a stream.
	AttemptTimeout         time.Duration
	HealthTimeout          time.Duration
	QualityRefreshInterval time.Duration
	HealthCheckInterval    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Curation:               curation.DefaultConfig(),
		Thresholds:             monitor.DefaultThresholds(),
		Retry:                  DefaultRetryPolicy(),
		AttemptTimeout:         60 * time.Second,
		HealthTimeout:          5 * time.Second,
		QualityRefreshInterval: 5 * time.Minute,
		HealthCheckInterval:    time.Minute,
	}
}

type Option func(*Manager)

func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithIngestor persists every attempt through the analytics pipeline.
func WithIngestor(i analytics.Ingestor) Option {
	return func(m *Manager) { m.ingestor = i }
}

func WithMetrics(pm *metrics.ProviderMetrics) Option {
	return func(m *Manager) { m.metrics = pm }
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// Manager orchestrates providers: it resolves the target of each request,
// retries transient failures, fails over when the target is unhealthy and
// keeps the monitor and curator informed of every attempt.
type Manager struct {
	cfg      Config
	registry *Registry
	monitor  *monitor.Monitor
	curator  *curation.Curator
	ingestor analytics.Ingestor
	metrics  *metrics.ProviderMetrics
	tracer   trace.Tracer
	log      *zap.Logger

	sleep func(context.Context, time.Duration) error
	now   func() time.Time

	mu      sync.RWMutex
	current string
	states  map[string]*providerState

	loopMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		registry: NewRegistry(),
		tracer:   otel.Tracer(tracerName),
		log:      zap.NewNop(),
		sleep:    sleepCtx,
		now:      time.Now,
		states:   make(map[string]*providerState),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("gateway")
	m.monitor = monitor.New(m.metrics)
	m.curator = curation.New(cfg.Curation, m.monitor, m.metrics, m.log)
	return m
}

func (m *Manager) Registry() *Registry { return m.registry }
func (m *Manager) PerformanceMonitor() *monitor.Monitor { return m.monitor }
func (m *Manager) Curator() *curation.Curator { return m.curator }
func (m *Manager) Metrics() *metrics.ProviderMetrics { return m.metrics }
func (m *Manager) Thresholds() monitor.Thresholds { return m.cfg.Thresholds }

// RegisterProvider adds p in the disconnected state with fresh history.
func (m *Manager) RegisterProvider(p llm.Provider) error {
	if err := m.registry.Register(p); err != nil {
		return err
	}
	m.monitor.Reset(p.ID())
	m.curator.Remove(p.ID())

	m.mu.Lock()
	m.states[p.ID()] = &providerState{state: StateDisconnected, changedAt: m.now()}
	m.mu.Unlock()

	m.metrics.SetState(p.ID(), StateDisconnected.String(), stateNames())
	m.log.Info("provider registered", zap.String("provider", p.ID()), zap.String("type", p.Type()))
	return nil
}

// LoadProvider registers p and probes it. A healthy provider has its models
// recorded with the curator so selection can filter on them right away. A
// failed probe leaves p registered in the error state.
func (m *Manager) LoadProvider(ctx context.Context, p llm.Provider) error {
	if err := m.RegisterProvider(p); err != nil {
		return err
	}
	if _, err := m.HealthCheck(ctx, p.ID()); err != nil {
		m.log.Warn("provider loaded unhealthy", zap.String("provider", p.ID()), zap.Error(err))
		return nil
	}

	models, err := p.Models(ctx)
	if err != nil {
		m.log.Warn("model listing failed", zap.String("provider", p.ID()), zap.Error(err))
		return nil
	}
	m.curator.UpdateQualityScore(p.ID(), models)
	return nil
}

// UnregisterProvider removes p and forgets its history.
func (m *Manager) UnregisterProvider(id string) error {
	if err := m.registry.Unregister(id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.states, id)
	if m.current == id {
		m.current = ""
	}
	m.mu.Unlock()

	m.monitor.Reset(id)
	m.curator.Remove(id)
	m.metrics.Forget(id)
	return nil
}

// StopProvider takes id out of rotation without unregistering it.
func (m *Manager) StopProvider(id string) error {
	if !m.registry.Has(id) {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	if err := m.UpdateProviderState(id, StateDisconnected, ""); err != nil {
		return err
	}
	m.mu.Lock()
	if m.current == id {
		m.current = ""
	}
	m.mu.Unlock()
	return nil
}

// Reconnect re-probes id and returns the probe outcome.
func (m *Manager) Reconnect(ctx context.Context, id string) (bool, error) {
	return m.HealthCheck(ctx, id)
}

func (m *Manager) SetCurrentProvider(id string) error {
	if !m.registry.Has(id) {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	m.mu.Lock()
	prev := m.current
	m.current = id
	m.mu.Unlock()

	if prev != id {
		m.log.Info("current provider changed", zap.String("from", prev), zap.String("to", id))
	}
	return nil
}

func (m *Manager) CurrentProvider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// State returns the provider's connection state and its last error.
func (m *Manager) State(id string) (ConnectionState, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	if !ok {
		return StateDisconnected, "", false
	}
	return s.state, s.lastError, true
}

// UpdateProviderState moves id through the connection state machine.
func (m *Manager) UpdateProviderState(id string, to ConnectionState, lastError string) error {
	m.mu.Lock()
	s, ok := m.states[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	from := s.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return transitionError(id, from, to)
	}
	s.state = to
	s.lastError = lastError
	if from != to {
		s.changedAt = m.now()
	}
	m.mu.Unlock()

	if from != to {
		m.metrics.SetState(id, to.String(), stateNames())
		m.log.Info("provider state changed",
			zap.String("provider", id),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.String("last_error", lastError),
		)
	}
	return nil
}

// settle applies the state change implied by an attempt outcome. Stopped
// providers stay stopped.
func (m *Manager) settle(id string, success bool, lastError string) {
	st, _, ok := m.State(id)
	if !ok || st == StateDisconnected {
		return
	}
	to := StateConnected
	if !success {
		to = StateError
	}
	if err := m.UpdateProviderState(id, to, lastError); err != nil {
		m.log.Debug("state not updated", zap.Error(err))
	}
}

func (m *Manager) ids(filter func(ConnectionState) bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, s := range m.states {
		if filter(s.state) {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) connectedIDs() []string {
	return m.ids(func(s ConnectionState) bool { return s == StateConnected })
}

// servesModel is true unless id advertised a model list that lacks model.
func (m *Manager) servesModel(id, modelID string) bool {
	if modelID == "" {
		return true
	}
	models := m.curator.Models(id)
	if len(models) == 0 {
		return true
	}
	for _, mi := range models {
		if mi.ID == modelID {
			return true
		}
	}
	return false
}

// SelectBestProvider ranks candidates, or every registered provider when
// candidates is empty.
func (m *Manager) SelectBestProvider(candidates []string, cons curation.SelectionConstraints) (string, bool) {
	if len(candidates) == 0 {
		candidates = m.registry.ListProviderIDs()
	}
	return m.curator.SelectBestProvider(candidates, cons)
}

func (m *Manager) ShouldAvoidProvider(id string) bool {
	if !m.cfg.Curation.Enabled {
		return false
	}
	return m.curator.ShouldAvoid(id)
}

// GetFailoverProvider picks the best connected provider other than id.
func (m *Manager) GetFailoverProvider(id string) (string, bool) {
	return m.failoverFor(id, "")
}

func (m *Manager) failoverFor(id, modelID string) (string, bool) {
	var candidates []string
	for _, c := range m.connectedIDs() {
		if c != id && m.servesModel(c, modelID) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	return m.curator.SelectBestProvider(candidates, curation.SelectionConstraints{})
}

// selectForDispatch picks a provider when none is current. Connected
// providers meeting the thresholds win; the constraints relax in steps.
func (m *Manager) selectForDispatch(modelID string) (string, bool) {
	pools := [][]string{
		m.connectedIDs(),
		m.ids(ConnectionState.Dispatchable),
	}
	for _, pool := range pools {
		var candidates []string
		for _, id := range pool {
			if m.servesModel(id, modelID) {
				candidates = append(candidates, id)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		if id, ok := m.curator.SelectBestProvider(candidates, curation.SelectionConstraints{Thresholds: &m.cfg.Thresholds}); ok {
			return id, true
		}
		if id, ok := m.curator.SelectBestProvider(candidates, curation.SelectionConstraints{}); ok {
			return id, true
		}
	}
	return "", false
}

// target is the resolved destination of one request.
type target struct {
	provider llm.Provider
	model    string
	pinned   bool
}

// resolve maps the requested model to a provider. "<provider>/<model>" pins
// the request when the prefix is a registered id; anything else goes to the
// current provider unless the curator says to avoid it.
func (m *Manager) resolve(requested string) (target, error) {
	if prefix, rest, ok := strings.Cut(requested, "/"); ok && rest != "" && m.registry.Has(prefix) {
		p, err := m.registry.Get(prefix)
		if err != nil {
			return target{}, err
		}
		if st, _, _ := m.State(prefix); !st.Dispatchable() {
			return target{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, prefix)
		}
		return target{provider: p, model: rest, pinned: true}, nil
	}

	id := m.CurrentProvider()
	if st, _, ok := m.State(id); ok && st.Dispatchable() {
		if m.ShouldAvoidProvider(id) {
			if fo, ok := m.failoverFor(id, requested); ok {
				m.log.Warn("avoiding current provider",
					zap.String("provider", id),
					zap.String("failover", fo),
					zap.Stringer("reliability", m.curator.Status(id)),
				)
				m.metrics.RecordFailover(id, fo)
				if m.cfg.Curation.AutoSwitch {
					_ = m.SetCurrentProvider(fo)
				}
				id = fo
			} else {
				m.log.Warn("current provider is avoided and no failover is connected", zap.String("provider", id))
			}
		}
	} else {
		selected, ok := m.selectForDispatch(requested)
		if !ok {
			return target{}, ErrNoProviderAvailable
		}
		m.mu.Lock()
		if m.current == "" || m.current == id {
			m.current = selected
		}
		m.mu.Unlock()
		id = selected
	}

	p, err := m.registry.Get(id)
	if err != nil {
		return target{}, err
	}
	return target{provider: p, model: requested}, nil
}

// attempt carries per-attempt bookkeeping into the logs.
type attempt struct {
	requestID string
	number    int
	failover  bool
	streamed  bool
}

// Chat dispatches req with retries and at most one failover attempt.
func (m *Manager) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	t, err := m.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	upstream := req.Clone()
	upstream.Model = t.model
	upstream.Stream = false

	requestID := uuid.NewString()
	ctx, span := m.tracer.Start(ctx, "gateway.chat", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("provider.id", t.provider.ID()),
		attribute.String("model.id", t.model),
	))
	defer span.End()

	resp, n, err := retryLoop(ctx, m, t.provider.ID(), func(number int) (*api.ChatResponse, error) {
		return m.chat(ctx, t.provider, upstream, attempt{requestID: requestID, number: number})
	})
	if err == nil {
		return resp, nil
	}

	fo, ok := m.shouldFailover(ctx, t, err)
	if !ok {
		recordSpanError(span, err)
		return nil, err
	}
	span.AddEvent("failover", trace.WithAttributes(attribute.String("provider.id", fo.ID())))
	resp, err = m.chat(ctx, fo, upstream, attempt{requestID: requestID, number: n + 1, failover: true})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	m.switchTo(fo.ID())
	return resp, nil
}

// ChatWithProvider runs exactly one attempt against p and records it.
func (m *Manager) ChatWithProvider(ctx context.Context, p llm.Provider, req *api.ChatRequest) (*api.ChatResponse, error) {
	return m.chat(ctx, p, req, attempt{requestID: uuid.NewString(), number: 1})
}

func (m *Manager) chat(ctx context.Context, p llm.Provider, req *api.ChatRequest, a attempt) (*api.ChatResponse, error) {
	ctx, span := m.tracer.Start(ctx, "provider.chat", trace.WithAttributes(
		attribute.String("provider.id", p.ID()),
		attribute.Int("attempt", a.number),
		attribute.Bool("failover", a.failover),
	))
	defer span.End()

	actx, cancel := m.attemptContext(ctx)
	defer cancel()

	start := m.now()
	resp, err := p.Chat(actx, req)
	elapsed := m.now().Sub(start)
	if err == nil && resp == nil {
		err = llm.ProviderError(p.ID(), "empty response")
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// the caller walked away; not the provider's fault
			return nil, ctx.Err()
		}
		if actx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = llm.Timeout(p.ID(), err)
		}
		classified := llm.Classify(p.ID(), err)
		recordSpanError(span, classified)
		m.record(p.ID(), req.Model, a, elapsed, nil, "", classified)
		return nil, classified
	}

	if resp.Provider == "" {
		resp.Provider = p.ID()
	}
	span.SetAttributes(attribute.Int("tokens.total", resp.TotalTokens()))
	m.record(p.ID(), req.Model, a, elapsed, resp.Usage, resp.Finish(), nil)
	return resp, nil
}

func (m *Manager) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.AttemptTimeout > 0 {
		return context.WithTimeout(ctx, m.cfg.AttemptTimeout)
	}
	return context.WithCancel(ctx)
}

// record feeds one attempt outcome to every observer.
func (m *Manager) record(id, modelID string, a attempt, elapsed time.Duration, usage *api.ResponseUsage, finish api.FinishReason, err error) {
	success := err == nil
	tokens := 0
	if usage != nil {
		tokens = usage.TotalTokens
		if tokens == 0 {
			tokens = usage.PromptTokens + usage.CompletionTokens
		}
	}

	m.monitor.RecordRequest(id, success, elapsed, tokens)

	log := &model.AttemptLog{
		ID:           uuid.NewString(),
		RequestID:    a.requestID,
		ProviderID:   id,
		ModelID:      modelID,
		Attempt:      a.number,
		IsFailover:   a.failover,
		IsStreamed:   a.streamed,
		Success:      success,
		FinishReason: string(finish),
		LatencyMS:    elapsed.Milliseconds(),
		CreatedAt:    m.now(),
	}
	if usage != nil {
		log.InputTokens = usage.PromptTokens
		log.OutputTokens = usage.CompletionTokens
	}

	if success {
		m.curator.RecordSuccess(id)
		m.settle(id, true, "")
	} else {
		kind := llm.KindOf(err)
		log.ErrorKind = string(kind)
		log.ErrorMessage = err.Error()
		m.curator.RecordFailure(id)
		m.metrics.RecordError(id, string(kind))
		m.settle(id, false, err.Error())
		m.log.Warn("provider attempt failed",
			zap.String("provider", id),
			zap.String("request_id", a.requestID),
			zap.Int("attempt", a.number),
			zap.String("kind", string(kind)),
			zap.Duration("latency", elapsed),
			zap.Error(err),
		)
	}

	if m.ingestor != nil {
		m.ingestor.Log(log)
	}
}

// shouldFailover returns the provider for the single failover attempt.
// Pinned requests never fail over.
func (m *Manager) shouldFailover(ctx context.Context, t target, err error) (llm.Provider, bool) {
	if t.pinned || ctx.Err() != nil || !llm.IsRetryable(err) {
		return nil, false
	}
	id, ok := m.failoverFor(t.provider.ID(), t.model)
	if !ok {
		return nil, false
	}
	p, gerr := m.registry.Get(id)
	if gerr != nil {
		return nil, false
	}
	m.log.Warn("failing over",
		zap.String("from", t.provider.ID()),
		zap.String("to", id),
		zap.Error(err),
	)
	m.metrics.RecordFailover(t.provider.ID(), id)
	return p, true
}

func (m *Manager) switchTo(id string) {
	if m.cfg.Curation.AutoSwitch {
		_ = m.SetCurrentProvider(id)
	}
}

// retryLoop runs fn until it succeeds, the policy gives up, or the provider
// becomes avoided. It returns the number of attempts made.
func retryLoop[T any](ctx context.Context, m *Manager, id string, fn func(number int) (T, error)) (T, int, error) {
	var zero T
	for number := 1; ; number++ {
		out, err := fn(number)
		if err == nil {
			return out, number, nil
		}
		delay, again := m.cfg.Retry.Next(number, err)
		if !again || m.ShouldAvoidProvider(id) {
			return zero, number, err
		}
		m.log.Debug("retrying provider",
			zap.String("provider", id),
			zap.Int("attempt", number),
			zap.Duration("delay", delay),
		)
		if serr := m.sleep(ctx, delay); serr != nil {
			return zero, number, err
		}
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
