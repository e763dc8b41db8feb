package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FetchTaskRepository interface {
	Create(ctx context.Context, t *domain.FetchTask) error
	GetByID(ctx context.Context, id string) (*domain.FetchTask, error)
	// LockForRun claims the task for one attempt, bumping its attempt
	// counter. Returns nil (no error) when the task is already terminal.
	LockForRun(ctx context.Context, id string) (*domain.FetchTask, error)
	MarkSucceeded(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	ScheduleRetry(ctx context.Context, id string, reason string, nextRetryAt time.Time) error
	GetDueForRetry(ctx context.Context, limit int) ([]domain.FetchTask, error)
	ClearNextRetryAt(ctx context.Context, id string) error
	// CountUnfinished reports how many of a batch's tasks of one kind are
	// still able to produce data.
	CountUnfinished(ctx context.Context, batchID string, kind domain.TaskKind) (int64, error)
}

type GormFetchTaskRepo struct {
	db *gorm.DB
}

func NewGormFetchTaskRepo(db *gorm.DB) *GormFetchTaskRepo {
	return &GormFetchTaskRepo{db: db}
}

func (r *GormFetchTaskRepo) Create(ctx context.Context, t *domain.FetchTask) error {
	model := fetchTaskModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if t != nil {
		*t = *fetchTaskModelToDomain(model)
	}
	return nil
}

func (r *GormFetchTaskRepo) GetByID(ctx context.Context, id string) (*domain.FetchTask, error) {
	var model FetchTaskModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fetchTaskModelToDomain(&model), nil
}

func (r *GormFetchTaskRepo) LockForRun(ctx context.Context, id string) (*domain.FetchTask, error) {
	var model FetchTaskModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// Terminal tasks are acked and skipped.
	switch model.Status {
	case domain.TaskStatusSucceeded, domain.TaskStatusFailed:
		return nil, nil
	}

	updates := map[string]any{
		"status":        domain.TaskStatusRunning,
		"attempt_count": gorm.Expr("attempt_count + 1"),
	}
	if err := r.db.WithContext(ctx).
		Model(&model).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	model.Status = domain.TaskStatusRunning
	model.AttemptCount++
	return fetchTaskModelToDomain(&model), nil
}

func (r *GormFetchTaskRepo) MarkSucceeded(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.TaskStatusSucceeded, nil)
}

func (r *GormFetchTaskRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.setStatus(ctx, id, domain.TaskStatusFailed, &reason)
}

func (r *GormFetchTaskRepo) setStatus(ctx context.Context, id string, status domain.TaskStatus, reason *string) error {
	updates := map[string]any{
		"status":        status,
		"next_retry_at": nil,
	}
	if reason != nil {
		updates["last_error"] = *reason
	}

	result := r.db.WithContext(ctx).
		Model(&FetchTaskModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormFetchTaskRepo) ScheduleRetry(ctx context.Context, id string, reason string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&FetchTaskModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.TaskStatusQueued,
			"last_error":    reason,
			"next_retry_at": nextRetryAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormFetchTaskRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.FetchTask, error) {
	var models []FetchTaskModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", domain.TaskStatusQueued, time.Now()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	tasks := make([]domain.FetchTask, 0, len(models))
	for i := range models {
		tasks = append(tasks, *fetchTaskModelToDomain(&models[i]))
	}
	return tasks, nil
}

func (r *GormFetchTaskRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&FetchTaskModel{}).
		Where("id = ?", id).
		Update("next_retry_at", nil).Error
}

func (r *GormFetchTaskRepo) CountUnfinished(ctx context.Context, batchID string, kind domain.TaskKind) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&FetchTaskModel{}).
		Where("batch_id = ? AND kind = ? AND status NOT IN ?", batchID, kind, []domain.TaskStatus{
			domain.TaskStatusSucceeded,
			domain.TaskStatusFailed,
		}).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
