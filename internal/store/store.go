package store

import (
	"context"
	"errors"
	"time"

	"github.com/nulzo/model-curator/internal/store/model"
)

// ErrNotFound is returned by single-row lookups with no match.
var ErrNotFound = errors.New("store: not found")

// Repository is the main contract for the data layer.
type Repository interface {
	Attempts() AttemptRepository
	Evaluations() EvaluationRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

type AttemptRepository interface {
	// Log stores one provider attempt.
	Log(ctx context.Context, attempt *model.AttemptLog) error
	// GetRecent returns the last N attempts against a provider.
	GetRecent(ctx context.Context, providerID string, limit int) ([]model.AttemptLog, error)
	// GetDailyStats returns aggregated stats grouped by day and provider.
	GetDailyStats(ctx context.Context, days int) ([]model.DailyStats, error)
	// Prune deletes attempts older than the cutoff.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type EvaluationRepository interface {
	Save(ctx context.Context, rec *model.EvaluationRecord) error
	// Latest returns the newest evaluation of a provider/model pair.
	Latest(ctx context.Context, providerID, modelID string) (*model.EvaluationRecord, error)
	List(ctx context.Context, providerID string, limit int) ([]model.EvaluationRecord, error)
}
