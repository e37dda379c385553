package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nulzo/model-curator/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Retention deletes attempt logs older than a fixed age on a cron schedule.
type Retention struct {
	attempts store.AttemptRepository
	keep     time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewRetention(attempts store.AttemptRepository, keep time.Duration, logger *zap.Logger) *Retention {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retention{
		attempts: attempts,
		keep:     keep,
		logger:   logger.Named("retention"),
		now:      time.Now,
		cron:     cron.New(),
	}
}

// Prune deletes rows older than the retention age once.
func (r *Retention) Prune(ctx context.Context) (int64, error) {
	if r.keep <= 0 {
		return 0, nil
	}
	n, err := r.attempts.Prune(ctx, r.now().Add(-r.keep))
	if err != nil {
		return 0, fmt.Errorf("prune attempt logs: %w", err)
	}
	if n > 0 {
		r.logger.Info("pruned attempt logs", zap.Int64("rows", n), zap.Duration("older_than", r.keep))
	}
	return n, nil
}

// Start prunes immediately and then on schedule, a standard five-field cron
// expression or a descriptor such as "@hourly". An empty schedule or a zero
// retention age disables it.
func (r *Retention) Start(ctx context.Context, schedule string) error {
	if schedule == "" || r.keep <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	if _, err := r.cron.AddFunc(schedule, func() {
		if _, err := r.Prune(ctx); err != nil {
			r.logger.Warn("scheduled pruning failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	if _, err := r.Prune(ctx); err != nil {
		r.logger.Warn("initial pruning failed", zap.Error(err))
	}
	r.cron.Start()
	r.running = true
	return nil
}

// Stop waits for a running prune to finish.
func (r *Retention) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
}

// NextRun reports when the next scheduled prune fires.
func (r *Retention) NextRun() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.cron.Entries()
	if !r.running || len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}
