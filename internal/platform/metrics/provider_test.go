package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderMetrics_RecordAttempt(t *testing.T) {
	pm := NewProviderMetrics()

	pm.RecordAttempt("p1", true, 0.2, 30)
	pm.RecordAttempt("p1", false, 1.5, 0)
	pm.RecordError("p1", "timeout")

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.requests.WithLabelValues("p1", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.requests.WithLabelValues("p1", "failure")))
	assert.Equal(t, 30.0, testutil.ToFloat64(pm.tokens.WithLabelValues("p1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.errors.WithLabelValues("p1", "timeout")))
}

func TestProviderMetrics_StateIsExclusive(t *testing.T) {
	pm := NewProviderMetrics()
	all := []string{"disconnected", "connecting", "connected", "error"}

	pm.SetState("p1", "connecting", all)
	pm.SetState("p1", "connected", all)

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.state.WithLabelValues("p1", "connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.state.WithLabelValues("p1", "connecting")))
}

func TestProviderMetrics_NilIsSafe(t *testing.T) {
	var pm *ProviderMetrics
	assert.NotPanics(t, func() {
		pm.RecordAttempt("p", true, 1, 1)
		pm.SetAvoided("p", true)
		pm.Forget("p")
	})
}

func TestProviderMetrics_Handler(t *testing.T) {
	pm := NewProviderMetrics()
	pm.SetQuality("p1", "overall", 0.75)

	rec := httptest.NewRecorder()
	pm.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `curator_provider_quality_score{component="overall",provider="p1"} 0.75`))
}
