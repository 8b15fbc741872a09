package repository

import (
	"context"

	"github.com/aifans/aifans/app/models"
	"gorm.io/gorm"
)

type storedFileRepository struct {
	db *gorm.DB
}

func NewStoredFileRepository(db *gorm.DB) StoredFileRepository {
	return &storedFileRepository{db: db}
}

func (r *storedFileRepository) Create(ctx context.Context, f *models.StoredFile) error {
	return conn(ctx, r.db).Create(f).Error
}

// GetByKey matches either the object key or its thumbnail key.
func (r *storedFileRepository) GetByKey(ctx context.Context, key string) (*models.StoredFile, error) {
	var f models.StoredFile
	if err := conn(ctx, r.db).Where("object_key = ? OR thumbnail_key = ?", key, key).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// ListByBackend pages through files on a backend in id order.
func (r *storedFileRepository) ListByBackend(ctx context.Context, backend string, afterID uint, limit int) ([]models.StoredFile, error) {
	if limit <= 0 {
		limit = 100
	}
	var files []models.StoredFile
	err := conn(ctx, r.db).
		Where("backend = ? AND id > ?", backend, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&files).Error
	return files, err
}

func (r *storedFileRepository) UpdateBackend(ctx context.Context, id uint, backend string) error {
	return conn(ctx, r.db).Model(&models.StoredFile{}).
		Where("id = ?", id).
		Update("backend", backend).Error
}
