package model

import (
	"time"
)

// AttemptLog captures one dispatch attempt against a provider.
type AttemptLog struct {
	ID           string    `db:"id" json:"id"`
	RequestID    string    `db:"request_id" json:"request_id"`
	ProviderID   string    `db:"provider_id" json:"provider_id"`
	ModelID      string    `db:"model_id" json:"model_id"`
	Attempt      int       `db:"attempt" json:"attempt"`
	IsFailover   bool      `db:"is_failover" json:"is_failover"`
	IsStreamed   bool      `db:"is_streamed" json:"is_streamed"`
	Success      bool      `db:"success" json:"success"`
	ErrorKind    string    `db:"error_kind" json:"error_kind,omitempty"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	FinishReason string    `db:"finish_reason" json:"finish_reason,omitempty"`
	InputTokens  int       `db:"input_tokens" json:"input_tokens"`
	OutputTokens int       `db:"output_tokens" json:"output_tokens"`
	LatencyMS    int64     `db:"latency_ms" json:"latency_ms"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// EvaluationRecord is a persisted provider evaluation.
type EvaluationRecord struct {
	ID               string    `db:"id" json:"id"`
	ProviderID       string    `db:"provider_id" json:"provider_id"`
	ModelID          string    `db:"model_id" json:"model_id"`
	SuiteVersion     string    `db:"suite_version" json:"suite_version"`
	OverallScore     float64   `db:"overall_score" json:"overall_score"`
	ReliabilityScore float64   `db:"reliability_score" json:"reliability_score"`
	CostEfficiency   float64   `db:"cost_efficiency" json:"cost_efficiency"`
	ResultsJSON      string    `db:"results_json" json:"-"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// DailyStats represents aggregated usage data for a specific day.
type DailyStats struct {
	Date           string  `db:"date" json:"date"`
	ProviderID     string  `db:"provider_id" json:"provider_id"`
	TotalRequests  int     `db:"total_requests" json:"total_requests"`
	FailedRequests int     `db:"failed_requests" json:"failed_requests"`
	Failovers      int     `db:"failovers" json:"failovers"`
	TotalTokens    int     `db:"total_tokens" json:"total_tokens"`
	AverageLatency float64 `db:"avg_latency" json:"avg_latency"`
}
