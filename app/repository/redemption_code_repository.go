package repository

import (
	"context"
	"time"

	"github.com/aifans/aifans/app/models"
	"gorm.io/gorm"
)

type redemptionCodeRepository struct {
	db *gorm.DB
}

func NewRedemptionCodeRepository(db *gorm.DB) RedemptionCodeRepository {
	return &redemptionCodeRepository{db: db}
}

func (r *redemptionCodeRepository) Create(ctx context.Context, code *models.RedemptionCode) error {
	return conn(ctx, r.db).Create(code).Error
}

func (r *redemptionCodeRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var n int64
	err := conn(ctx, r.db).Model(&models.RedemptionCode{}).Where("code = ?", code).Count(&n).Error
	return n > 0, err
}

func (r *redemptionCodeRepository) GetByCode(ctx context.Context, code string) (*models.RedemptionCode, error) {
	var rc models.RedemptionCode
	if err := conn(ctx, r.db).Where("code = ?", code).First(&rc).Error; err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *redemptionCodeRepository) GetByID(ctx context.Context, id uint) (*models.RedemptionCode, error) {
	var rc models.RedemptionCode
	if err := conn(ctx, r.db).First(&rc, id).Error; err != nil {
		return nil, err
	}
	return &rc, nil
}

// Claim marks an unused code as used by userID. Exactly one concurrent caller
// can get true for a given code.
func (r *redemptionCodeRepository) Claim(ctx context.Context, code string, userID uint, at time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&models.RedemptionCode{}).
		Where("code = ? AND is_used = ?", code, false).
		Updates(map[string]any{
			"is_used":         true,
			"used_by_user_id": userID,
			"used_at":         at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *redemptionCodeRepository) DeleteUnused(ctx context.Context, id uint) (bool, error) {
	res := conn(ctx, r.db).
		Where("id = ? AND is_used = ?", id, false).
		Delete(&models.RedemptionCode{})
	return res.RowsAffected == 1, res.Error
}

func (r *redemptionCodeRepository) List(ctx context.Context, filter CodeFilter) ([]models.RedemptionCode, int64, error) {
	q := conn(ctx, r.db).Model(&models.RedemptionCode{})
	if filter.Used != nil {
		q = q.Where("is_used = ?", *filter.Used)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var codes []models.RedemptionCode
	err := q.Order("id DESC").Offset(filter.Offset).Limit(limit).Find(&codes).Error
	return codes, total, err
}
