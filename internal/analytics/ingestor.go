package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/nulzo/model-curator/internal/store"
	"github.com/nulzo/model-curator/internal/store/model"
	"go.uber.org/zap"
)

// Ingestor handles the asynchronous persistence of attempt logs.
type Ingestor interface {
	Log(attempt *model.AttemptLog)
	Start(ctx context.Context)
	Stop()
}

type ingestor struct {
	logger    *zap.Logger
	repo      store.Repository
	logChan   chan *model.AttemptLog
	batchSize int
	flushTime time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type Option func(*ingestor)

func WithBatchSize(n int) Option {
	return func(i *ingestor) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(i *ingestor) {
		if d > 0 {
			i.flushTime = d
		}
	}
}

func NewIngestor(logger *zap.Logger, repo store.Repository, opts ...Option) Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &ingestor{
		logger:    logger.Named("analytics"),
		repo:      repo,
		logChan:   make(chan *model.AttemptLog, 10000),
		batchSize: 50,
		flushTime: 5 * time.Second,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *ingestor) Log(attempt *model.AttemptLog) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.closed {
		return
	}

	select {
	case i.logChan <- attempt:
	default:
		i.logger.Warn("Analytics buffer full, dropping attempt log", zap.String("id", attempt.ID))
	}
}

func (i *ingestor) Start(ctx context.Context) {
	go i.worker(ctx)
}

// Stop flushes pending logs and waits for the worker to exit.
func (i *ingestor) Stop() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	close(i.logChan)
	i.mu.Unlock()

	<-i.done
}

func (i *ingestor) worker(ctx context.Context) {
	defer close(i.done)

	batch := make([]*model.AttemptLog, 0, i.batchSize)
	ticker := time.NewTicker(i.flushTime)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		// the request context may already be gone
		fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := i.repo.WithTx(fctx, func(tx store.Repository) error {
			for _, a := range batch {
				if err := tx.Attempts().Log(fctx, a); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			i.logger.Error("Failed to persist attempt logs", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case a, ok := <-i.logChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, a)
			if len(batch) >= i.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			// drain whatever is already buffered
			for {
				select {
				case a, ok := <-i.logChan:
					if !ok {
						flush()
						return
					}
					batch = append(batch, a)
				default:
					flush()
					return
				}
			}
		}
	}
}
