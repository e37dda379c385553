package analytics

import (
	"context"

	"github.com/nulzo/model-curator/internal/store"
	"github.com/nulzo/model-curator/internal/store/model"
)

type Service interface {
	GetUsageOverview(ctx context.Context, days int) ([]model.DailyStats, error)
	RecentAttempts(ctx context.Context, providerID string, limit int) ([]model.AttemptLog, error)
}

type service struct {
	repo store.Repository
}

func NewService(repo store.Repository) Service {
	return &service{
		repo: repo,
	}
}

func (s *service) GetUsageOverview(ctx context.Context, days int) ([]model.DailyStats, error) {
	if days <= 0 {
		days = 7 // default to last week
	}
	return s.repo.Attempts().GetDailyStats(ctx, days)
}

func (s *service) RecentAttempts(ctx context.Context, providerID string, limit int) ([]model.AttemptLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.Attempts().GetRecent(ctx, providerID, limit)
}
