package evaluation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nulzo/model-curator/internal/curation"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/internal/llm/llmtest"
	"github.com/nulzo/model-curator/internal/monitor"
	"github.com/nulzo/model-curator/internal/store"
	"github.com/nulzo/model-curator/internal/store/model"
	"github.com/nulzo/model-curator/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type memoryEvaluations struct {
	recs []model.EvaluationRecord
}

func (m *memoryEvaluations) Save(ctx context.Context, rec *model.EvaluationRecord) error {
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *memoryEvaluations) Latest(ctx context.Context, providerID, modelID string) (*model.EvaluationRecord, error) {
	for i := len(m.recs) - 1; i >= 0; i-- {
		if m.recs[i].ProviderID == providerID && m.recs[i].ModelID == modelID {
			rec := m.recs[i]
			return &rec, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memoryEvaluations) List(ctx context.Context, providerID string, limit int) ([]model.EvaluationRecord, error) {
	return m.recs, nil
}

func mathSuite() []Benchmark {
	return []Benchmark{{
		Name: "math",
		Cases: []TestCase{
			{Name: "a", Prompt: "17+25?", Check: containsNumber("42")},
			{Name: "b", Prompt: "3*8-5?", Check: containsNumber("19")},
		},
	}, {
		Name:  "echo",
		Cases: []TestCase{{Name: "any", Prompt: "say anything"}},
	}}
}

func pricedProvider() *llmtest.MockProvider {
	return llmtest.New("p1", api.ModelInfo{
		ID:      "m",
		Pricing: &api.ModelPricing{InputPer1K: 0.001, OutputPer1K: 0.002},
	})
}

func TestRunBenchmark(t *testing.T) {
	p := pricedProvider()
	p.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("The answer is 42", 500, 500), nil)

	e := New(nil, WithSuite(mathSuite()))
	res, err := e.RunBenchmark(context.Background(), p, "m", mathSuite()[0])
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 1, res.Failed)
	assert.InDelta(t, 0.5, res.Score, 1e-9)
	assert.Equal(t, 2000, res.TotalTokens)
	assert.True(t, res.CostKnown)
	assert.InDelta(t, 2*(0.0005+0.001), res.Cost, 1e-12)
	assert.False(t, res.Timestamp.IsZero())
}

func TestEvaluateProvider_Aggregates(t *testing.T) {
	p := pricedProvider()
	p.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("42", 10, 10), nil)
	repo := &memoryEvaluations{}

	e := New(nil, WithSuite(mathSuite()), WithRepository(repo))
	ev, err := e.EvaluateProvider(context.Background(), p, "m")
	require.NoError(t, err)

	require.Len(t, ev.Benchmarks, 2)
	assert.InDelta(t, (0.5+1.0)/2, ev.OverallScore, 1e-9)
	// no live tracker: derived from the benchmark pass rate
	assert.InDelta(t, 2.0/3.0, ev.ReliabilityScore, 1e-9)
	assert.Greater(t, ev.CostEfficiency, 0.9)
	assert.Equal(t, SuiteVersion, ev.SuiteVersion)
	assert.NotEmpty(t, ev.ID)

	require.Len(t, repo.recs, 1)
	latest, err := e.LatestEvaluation(context.Background(), "p1", "m")
	require.NoError(t, err)
	assert.Equal(t, ev.ID, latest.ID)
	assert.Len(t, latest.Benchmarks, 2)
}

func TestEvaluateProvider_ReliabilityFromCurator(t *testing.T) {
	c := curation.New(curation.DefaultConfig(), monitor.New(nil), nil, nil)
	c.RecordSuccess("p1")
	c.RecordFailure("p1")

	p := pricedProvider()
	p.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("42", 1, 1), nil)

	ev, err := New(c, WithSuite(mathSuite())).EvaluateProvider(context.Background(), p, "m")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ev.ReliabilityScore, 1e-9)
}

func TestEvaluateProvider_FailureIsNotAZeroScore(t *testing.T) {
	p := pricedProvider()
	p.On("Chat", mock.Anything, mock.Anything).Return(nil, llm.ProviderError("p1", "upstream down"))
	repo := &memoryEvaluations{}

	ev, err := New(nil, WithSuite(mathSuite()), WithRepository(repo)).EvaluateProvider(context.Background(), p, "m")
	require.Error(t, err)
	assert.Nil(t, ev)

	var evalErr *Error
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "math", evalErr.Benchmark)
	assert.Equal(t, llm.KindProvider, llm.KindOf(err))
	assert.Empty(t, repo.recs, "failed evaluations are not stored")
	p.AssertNumberOfCalls(t, "Chat", 1)
}

func TestEvaluateProvider_EmptyResponseFails(t *testing.T) {
	p := pricedProvider()
	p.On("Chat", mock.Anything, mock.Anything).Return(nil, nil)

	ev, err := New(nil, WithSuite(mathSuite())).EvaluateProvider(context.Background(), p, "m")
	require.Error(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, llm.KindProvider, llm.KindOf(err))
}

func TestEvaluateProvider_ModelsFailure(t *testing.T) {
	p := pricedProvider()
	p.ModelsErr = errors.New("catalogue down")

	_, err := New(nil).EvaluateProvider(context.Background(), p, "m")
	require.Error(t, err)
	p.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestEvaluateProvider_UnknownPricingIsNeutral(t *testing.T) {
	p := llmtest.New("p1")
	p.On("Chat", mock.Anything, mock.Anything).Return(llmtest.Reply("42", 1, 1), nil)

	ev, err := New(nil, WithSuite(mathSuite())).EvaluateProvider(context.Background(), p, "m")
	require.NoError(t, err)
	assert.Equal(t, 0.5, ev.CostEfficiency)
}

func TestLatestEvaluation_Stale(t *testing.T) {
	repo := &memoryEvaluations{recs: []model.EvaluationRecord{{
		ID: "old", ProviderID: "p1", ModelID: "m", SuiteVersion: "0.9.0", CreatedAt: time.Now(),
	}}}
	_, err := New(nil, WithRepository(repo)).LatestEvaluation(context.Background(), "p1", "m")
	assert.ErrorIs(t, err, ErrStale)
}

func TestCompatible(t *testing.T) {
	assert.True(t, Compatible(SuiteVersion))
	assert.True(t, Compatible("1.0.0"))
	assert.False(t, Compatible("0.9.0"))
	assert.False(t, Compatible("2.0.0"))
	assert.False(t, Compatible("not-a-version"))
}

func TestDefaultSuiteChecks(t *testing.T) {
	suite := DefaultSuite()
	require.NotEmpty(t, suite)
	for _, b := range suite {
		for _, tc := range b.Cases {
			assert.NotEmpty(t, tc.Prompt, "%s/%s", b.Name, tc.Name)
			require.NotNil(t, tc.Check, "%s/%s", b.Name, tc.Name)
		}
	}
	assert.True(t, containsNumber("42")("It is 42."))
	assert.False(t, containsNumber("42")("It is 421."))
}
