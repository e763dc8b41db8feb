package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"github.com/Julianhima91/himatrips-backend/internal/queue"
	"github.com/Julianhima91/himatrips-backend/internal/repository"
)

const (
	defaultRetryScanInterval = 15 * time.Second
	defaultRetryScanLimit    = 100
)

// RetryScanner periodically re-enqueues fetch tasks whose retry delay has
// elapsed. Backoff lives in the task row; nothing sleeps inline.
type RetryScanner struct {
	tasks     repository.FetchTaskRepository
	batches   repository.BatchRepository
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
}

func NewRetryScanner(
	tasks repository.FetchTaskRepository,
	batches repository.BatchRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if tasks == nil {
		return nil, fmt.Errorf("fetch task repository is required")
	}
	if batches == nil {
		return nil, fmt.Errorf("batch repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		tasks:     tasks,
		batches:   batches,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
	}, nil
}

func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due retries do not wait for the first ticker edge.
	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retry scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retry scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	dueTasks, err := s.tasks.GetDueForRetry(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due retries: %w", err)
	}

	for i := range dueTasks {
		task := dueTasks[i]

		batch, err := s.batches.GetByID(ctx, task.BatchID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				if markErr := s.tasks.MarkFailed(ctx, task.ID, "batch no longer exists"); markErr != nil {
					s.logger.Error("failed to fail orphaned retry task",
						zap.String("taskId", task.ID),
						zap.Error(markErr),
					)
				}
				continue
			}
			s.logger.Error("failed to load batch for retry task",
				zap.String("taskId", task.ID),
				zap.Error(err),
			)
			continue
		}
		if batch.Status.IsTerminal() {
			if markErr := s.tasks.MarkFailed(ctx, task.ID, "batch already resolved"); markErr != nil {
				s.logger.Error("failed to fail stale retry task",
					zap.String("taskId", task.ID),
					zap.Error(markErr),
				)
			}
			continue
		}

		msg := queue.FetchTaskMessage{
			TaskID:   task.ID,
			BatchID:  task.BatchID,
			Kind:     task.Kind,
			Source:   task.Source,
			Category: batch.Category,
			Attempt:  task.AttemptCount,
		}

		queueName := queue.QueueName(task.Kind)
		if err := s.publisher.Publish(ctx, queueName, msg); err != nil {
			s.logger.Error("failed to enqueue retry task",
				zap.String("taskId", task.ID),
				zap.String("queue", queueName),
				zap.Error(err),
			)
			continue
		}

		if err := s.tasks.ClearNextRetryAt(ctx, task.ID); err != nil {
			s.logger.Error("failed to clear next retry timestamp after enqueue",
				zap.String("taskId", task.ID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}
