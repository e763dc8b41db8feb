package repository

import (
	"context"
	"errors"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"gorm.io/gorm"
)

type BatchRepository interface {
	Create(ctx context.Context, b *domain.SearchBatch) error
	GetByID(ctx context.Context, id string) (*domain.SearchBatch, error)
	UpdateStatus(ctx context.Context, id string, status domain.BatchStatus) error
	ListBySweep(ctx context.Context, sweepID string) ([]domain.SearchBatch, error)
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.SearchBatch) error {
	model := batchModelFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if b != nil {
		*b = *batchModelToDomain(model)
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.SearchBatch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

// UpdateStatus moves a batch to a new state. Terminal states are sticky: an
// assembled or failed batch never transitions again, so late arrivals can
// not resurrect it.
func (r *GormBatchRepo) UpdateStatus(ctx context.Context, id string, status domain.BatchStatus) error {
	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ? AND status NOT IN ?", id, []domain.BatchStatus{
			domain.BatchStatusAssembled,
			domain.BatchStatusFailed,
		}).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormBatchRepo) ListBySweep(ctx context.Context, sweepID string) ([]domain.SearchBatch, error) {
	var models []BatchModel
	err := r.db.WithContext(ctx).
		Where("sweep_id = ?", sweepID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	batches := make([]domain.SearchBatch, 0, len(models))
	for i := range models {
		batches = append(batches, *batchModelToDomain(&models[i]))
	}
	return batches, nil
}
