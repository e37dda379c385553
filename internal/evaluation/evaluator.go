// Package evaluation runs a fixed benchmark suite against a provider/model
// pair and scores it.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nulzo/model-curator/internal/curation"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/internal/store"
	"github.com/nulzo/model-curator/internal/store/model"
	"github.com/nulzo/model-curator/pkg/api"
	"go.uber.org/zap"
)

// Error fails an evaluation outright. No partial scores are produced.
type Error struct {
	ProviderID string
	ModelID    string
	Benchmark  string
	Case       string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("evaluation of %s/%s failed at %s/%s: %v", e.ProviderID, e.ModelID, e.Benchmark, e.Case, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrStale is returned by LatestEvaluation when the stored row predates the
// current suite major version.
var ErrStale = errors.New("evaluation recorded under an incompatible suite version")

type CaseResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Latency  time.Duration `json:"latency"`
	Tokens   int           `json:"tokens"`
	Response string        `json:"response,omitempty"`
}

type BenchmarkResult struct {
	Benchmark        string        `json:"benchmark"`
	ProviderID       string        `json:"provider_id"`
	ModelID          string        `json:"model_id"`
	Total            int           `json:"total"`
	Passed           int           `json:"passed"`
	Failed           int           `json:"failed"`
	Score            float64       `json:"score"`
	AverageLatency   time.Duration `json:"average_latency"`
	TotalLatency     time.Duration `json:"total_latency"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	// Cost is in USD; CostKnown is false when the model carries no pricing.
	Cost      float64      `json:"cost"`
	CostKnown bool         `json:"cost_known"`
	Cases     []CaseResult `json:"cases"`
	Timestamp time.Time    `json:"timestamp"`
}

type ProviderEvaluation struct {
	ID               string            `json:"id"`
	ProviderID       string            `json:"provider_id"`
	ModelID          string            `json:"model_id"`
	SuiteVersion     string            `json:"suite_version"`
	OverallScore     float64           `json:"overall_score"`
	ReliabilityScore float64           `json:"reliability_score"`
	CostEfficiency   float64           `json:"cost_efficiency"`
	Benchmarks       []BenchmarkResult `json:"benchmarks"`
	EvaluatedAt      time.Time         `json:"evaluated_at"`
	Duration         time.Duration     `json:"duration"`
}

type Evaluator struct {
	suite   []Benchmark
	curator *curation.Curator
	repo    store.EvaluationRepository
	log     *zap.Logger
	now     func() time.Time
	// CaseTimeout bounds each benchmark call.
	CaseTimeout time.Duration
}

type Option func(*Evaluator)

func WithSuite(suite []Benchmark) Option {
	return func(e *Evaluator) { e.suite = suite }
}

func WithRepository(repo store.EvaluationRepository) Option {
	return func(e *Evaluator) { e.repo = repo }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Evaluator) {
		if log != nil {
			e.log = log.Named("evaluator")
		}
	}
}

// New builds an Evaluator. curator may be nil.
func New(curator *curation.Curator, opts ...Option) *Evaluator {
	e := &Evaluator{
		suite:       DefaultSuite(),
		curator:     curator,
		log:         zap.NewNop(),
		now:         time.Now,
		CaseTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) Suite() []Benchmark {
	return e.suite
}

// RunBenchmark executes every case of b. Any provider error aborts the run.
func (e *Evaluator) RunBenchmark(ctx context.Context, p llm.Provider, modelID string, b Benchmark) (*BenchmarkResult, error) {
	info, hasInfo, err := lookupModel(ctx, p, modelID)
	if err != nil {
		return nil, &Error{ProviderID: p.ID(), ModelID: modelID, Benchmark: b.Name, Case: "models", Err: err}
	}
	return e.runBenchmark(ctx, p, modelID, b, info, hasInfo)
}

func (e *Evaluator) runBenchmark(ctx context.Context, p llm.Provider, modelID string, b Benchmark, info api.ModelInfo, hasInfo bool) (*BenchmarkResult, error) {
	res := &BenchmarkResult{
		Benchmark:  b.Name,
		ProviderID: p.ID(),
		ModelID:    modelID,
		Total:      len(b.Cases),
		CostKnown:  hasInfo && (info.IsFree || info.Pricing != nil),
		Timestamp:  e.now(),
	}

	for _, tc := range b.Cases {
		cr, resp, err := e.runCase(ctx, p, modelID, tc)
		if err != nil {
			return nil, &Error{ProviderID: p.ID(), ModelID: modelID, Benchmark: b.Name, Case: tc.Name, Err: err}
		}

		res.Cases = append(res.Cases, cr)
		res.TotalLatency += cr.Latency
		if cr.Passed {
			res.Passed++
		} else {
			res.Failed++
		}
		if resp.Usage != nil {
			res.PromptTokens += resp.Usage.PromptTokens
			res.CompletionTokens += resp.Usage.CompletionTokens
			if res.CostKnown {
				c, _ := info.EstimateRequestCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
				res.Cost += c
			}
		}
		res.TotalTokens += cr.Tokens
	}

	if res.Total > 0 {
		res.Score = float64(res.Passed) / float64(res.Total)
		res.AverageLatency = res.TotalLatency / time.Duration(res.Total)
	}
	return res, nil
}

func (e *Evaluator) runCase(ctx context.Context, p llm.Provider, modelID string, tc TestCase) (CaseResult, *api.ChatResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, e.CaseTimeout)
	defer cancel()

	req := &api.ChatRequest{Model: modelID}
	if tc.System != "" {
		req.Messages = append(req.Messages, api.ChatMessage{Role: string(api.System), Content: api.TextContent(tc.System)})
	}
	req.Messages = append(req.Messages, api.ChatMessage{Role: string(api.User), Content: api.TextContent(tc.Prompt)})
	if tc.MaxTokens > 0 {
		maxTokens := tc.MaxTokens
		req.MaxTokens = &maxTokens
	}
	temp := 0.0
	req.Temperature = &temp

	start := time.Now()
	resp, err := p.Chat(cctx, req)
	latency := time.Since(start)
	if err == nil && resp == nil {
		err = llm.ProviderError(p.ID(), "empty response")
	}
	if err != nil {
		return CaseResult{}, nil, llm.Classify(p.ID(), err)
	}

	content := resp.Content()
	passed := content != "" && resp.Finish() != api.FinishError && (tc.Check == nil || tc.Check(content))

	return CaseResult{
		Name:     tc.Name,
		Passed:   passed,
		Latency:  latency,
		Tokens:   resp.TotalTokens(),
		Response: truncate(content, 200),
	}, resp, nil
}

// EvaluateProvider runs the whole suite. The first provider failure fails
// the evaluation.
func (e *Evaluator) EvaluateProvider(ctx context.Context, p llm.Provider, modelID string) (*ProviderEvaluation, error) {
	start := e.now()
	info, hasInfo, err := lookupModel(ctx, p, modelID)
	if err != nil {
		return nil, &Error{ProviderID: p.ID(), ModelID: modelID, Case: "models", Err: err}
	}

	ev := &ProviderEvaluation{
		ID:           uuid.NewString(),
		ProviderID:   p.ID(),
		ModelID:      modelID,
		SuiteVersion: SuiteVersion,
		EvaluatedAt:  start,
	}

	var (
		scoreSum      float64
		passed, total int
		cost          float64
		tokens        int
		costKnown     = true
	)
	for _, b := range e.suite {
		res, err := e.runBenchmark(ctx, p, modelID, b, info, hasInfo)
		if err != nil {
			e.log.Warn("evaluation failed", zap.String("provider", p.ID()), zap.String("model", modelID), zap.Error(err))
			return nil, err
		}
		ev.Benchmarks = append(ev.Benchmarks, *res)
		scoreSum += res.Score
		passed += res.Passed
		total += res.Total
		cost += res.Cost
		tokens += res.TotalTokens
		costKnown = costKnown && res.CostKnown
	}

	if n := len(ev.Benchmarks); n > 0 {
		ev.OverallScore = scoreSum / float64(n)
	}
	ev.ReliabilityScore = e.reliability(p.ID(), passed, total)
	ev.CostEfficiency = costEfficiency(cost, tokens, costKnown)
	ev.Duration = e.now().Sub(start)

	e.log.Info("evaluation complete",
		zap.String("provider", p.ID()),
		zap.String("model", modelID),
		zap.Float64("score", ev.OverallScore),
		zap.Float64("reliability", ev.ReliabilityScore),
		zap.Float64("cost_efficiency", ev.CostEfficiency))

	if e.repo != nil {
		if err := e.save(ctx, ev); err != nil {
			e.log.Error("failed to persist evaluation", zap.String("id", ev.ID), zap.Error(err))
		}
	}
	return ev, nil
}

// reliability prefers live tracking over the benchmark pass rate.
func (e *Evaluator) reliability(providerID string, passed, total int) float64 {
	if e.curator != nil {
		if t, ok := e.curator.Tracker(providerID); ok {
			return t.ReliabilityScore()
		}
	}
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total)
}

func costEfficiency(cost float64, tokens int, known bool) float64 {
	if !known {
		return 0.5
	}
	if tokens == 0 || cost <= 0 {
		return 1.0
	}
	return curation.CostEfficiencyFromRate(cost / (float64(tokens) / 1000))
}

func (e *Evaluator) save(ctx context.Context, ev *ProviderEvaluation) error {
	results, err := json.Marshal(ev.Benchmarks)
	if err != nil {
		return err
	}
	return e.repo.Save(ctx, &model.EvaluationRecord{
		ID:               ev.ID,
		ProviderID:       ev.ProviderID,
		ModelID:          ev.ModelID,
		SuiteVersion:     ev.SuiteVersion,
		OverallScore:     ev.OverallScore,
		ReliabilityScore: ev.ReliabilityScore,
		CostEfficiency:   ev.CostEfficiency,
		ResultsJSON:      string(results),
		CreatedAt:        ev.EvaluatedAt.UTC(),
	})
}

// LatestEvaluation loads the newest stored evaluation for the pair.
func (e *Evaluator) LatestEvaluation(ctx context.Context, providerID, modelID string) (*ProviderEvaluation, error) {
	if e.repo == nil {
		return nil, store.ErrNotFound
	}
	rec, err := e.repo.Latest(ctx, providerID, modelID)
	if err != nil {
		return nil, err
	}
	if !Compatible(rec.SuiteVersion) {
		return nil, fmt.Errorf("%w: %s", ErrStale, rec.SuiteVersion)
	}

	ev := &ProviderEvaluation{
		ID:               rec.ID,
		ProviderID:       rec.ProviderID,
		ModelID:          rec.ModelID,
		SuiteVersion:     rec.SuiteVersion,
		OverallScore:     rec.OverallScore,
		ReliabilityScore: rec.ReliabilityScore,
		CostEfficiency:   rec.CostEfficiency,
		EvaluatedAt:      rec.CreatedAt,
	}
	if rec.ResultsJSON != "" {
		if err := json.Unmarshal([]byte(rec.ResultsJSON), &ev.Benchmarks); err != nil {
			return nil, fmt.Errorf("decode benchmark results: %w", err)
		}
	}
	return ev, nil
}

func lookupModel(ctx context.Context, p llm.Provider, modelID string) (api.ModelInfo, bool, error) {
	models, err := p.Models(ctx)
	if err != nil {
		return api.ModelInfo{}, false, llm.Classify(p.ID(), err)
	}
	for _, m := range models {
		if m.ID == modelID {
			return m, true, nil
		}
	}
	return api.ModelInfo{}, false, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
