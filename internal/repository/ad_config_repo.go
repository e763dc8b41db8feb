package repository

import (
	"context"
	"time"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
	"gorm.io/gorm"
)

// Campaign sweep status values surfaced on ad configs.
const (
	AdStatusPlanned  = "PLANNED"
	AdStatusRunning  = "RUNNING"
	AdStatusExported = "EXPORTED"
	AdStatusPartial  = "PARTIAL"
	AdStatusFailed   = "FAILED"
)

type AdConfigRepository interface {
	Create(ctx context.Context, cfg *AdConfigModel) error
	UpdateStatus(ctx context.Context, id string, status string, detail *string) error
	MarkExported(ctx context.Context, id string, status string, exportedAt time.Time) error
}

type GormAdConfigRepo struct {
	db *gorm.DB
}

func NewGormAdConfigRepo(db *gorm.DB) *GormAdConfigRepo {
	return &GormAdConfigRepo{db: db}
}

func (r *GormAdConfigRepo) Create(ctx context.Context, cfg *AdConfigModel) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

func (r *GormAdConfigRepo) UpdateStatus(ctx context.Context, id string, status string, detail *string) error {
	updates := map[string]any{"status": status}
	if detail != nil {
		updates["detail"] = *detail
	}

	result := r.db.WithContext(ctx).
		Model(&AdConfigModel{}).
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

func (r *GormAdConfigRepo) MarkExported(ctx context.Context, id string, status string, exportedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&AdConfigModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      status,
			"exported_at": exportedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
