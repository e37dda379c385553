package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nulzo/model-curator/internal/store"
	"github.com/nulzo/model-curator/internal/store/model"
)

// DB defines the interface for database operations (satisfied by *sqlx.DB and *sqlx.Tx)
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SqliteRepository implements store.Repository
type SqliteRepository struct {
	db       *sqlx.DB // Required for starting new transactions
	executor DB       // Used for actual queries (can be *sqlx.DB or *sqlx.Tx)
}

func NewSqliteRepository(db *sqlx.DB) *SqliteRepository {
	return &SqliteRepository{
		db:       db,
		executor: db,
	}
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	txRepo := &SqliteRepository{
		db:       r.db,
		executor: tx,
	}

	if err := fn(txRepo); err != nil {
		// attempt rollback, but prioritize original error
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *SqliteRepository) Attempts() store.AttemptRepository {
	return &attemptRepo{db: r.executor}
}

func (r *SqliteRepository) Evaluations() store.EvaluationRepository {
	return &evaluationRepo{db: r.executor}
}

type attemptRepo struct {
	db DB
}

func (r *attemptRepo) Log(ctx context.Context, a *model.AttemptLog) error {
	query := `
	INSERT INTO attempt_logs (
		id, request_id, provider_id, model_id, attempt, is_failover, is_streamed,
		success, error_kind, error_message, finish_reason,
		input_tokens, output_tokens, latency_ms, created_at
	) VALUES (
		:id, :request_id, :provider_id, :model_id, :attempt, :is_failover, :is_streamed,
		:success, :error_kind, :error_message, :finish_reason,
		:input_tokens, :output_tokens, :latency_ms, :created_at
	)`
	_, err := r.db.NamedExecContext(ctx, query, a)
	return err
}

func (r *attemptRepo) GetRecent(ctx context.Context, providerID string, limit int) ([]model.AttemptLog, error) {
	var logs []model.AttemptLog
	query := `SELECT * FROM attempt_logs WHERE provider_id = ? ORDER BY created_at DESC LIMIT ?`
	err := r.db.SelectContext(ctx, &logs, query, providerID, limit)
	return logs, err
}

func (r *attemptRepo) GetDailyStats(ctx context.Context, days int) ([]model.DailyStats, error) {
	var stats []model.DailyStats
	query := `
		SELECT
			DATE(created_at) as date,
			provider_id,
			COUNT(*) as total_requests,
			SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END) as failed_requests,
			SUM(CASE WHEN is_failover = 1 THEN 1 ELSE 0 END) as failovers,
			SUM(input_tokens + output_tokens) as total_tokens,
			AVG(latency_ms) as avg_latency
		FROM attempt_logs
		WHERE created_at >= ?
		GROUP BY date, provider_id
		ORDER BY date DESC, provider_id ASC
	`
	since := time.Now().UTC().AddDate(0, 0, -days)
	err := r.db.SelectContext(ctx, &stats, query, since)
	return stats, err
}

func (r *attemptRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attempt_logs WHERE created_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type evaluationRepo struct {
	db DB
}

func (r *evaluationRepo) Save(ctx context.Context, rec *model.EvaluationRecord) error {
	query := `
	INSERT INTO evaluations (
		id, provider_id, model_id, suite_version,
		overall_score, reliability_score, cost_efficiency, results_json, created_at
	) VALUES (
		:id, :provider_id, :model_id, :suite_version,
		:overall_score, :reliability_score, :cost_efficiency, :results_json, :created_at
	)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("save evaluation: %w", err)
	}
	return nil
}

func (r *evaluationRepo) Latest(ctx context.Context, providerID, modelID string) (*model.EvaluationRecord, error) {
	var rec model.EvaluationRecord
	query := `SELECT * FROM evaluations WHERE provider_id = ? AND model_id = ? ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &rec, query, providerID, modelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *evaluationRepo) List(ctx context.Context, providerID string, limit int) ([]model.EvaluationRecord, error) {
	var recs []model.EvaluationRecord
	query := `SELECT * FROM evaluations WHERE provider_id = ? ORDER BY created_at DESC LIMIT ?`
	err := r.db.SelectContext(ctx, &recs, query, providerID, limit)
	return recs, err
}
