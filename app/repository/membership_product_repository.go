package repository

import (
	"context"

	"github.com/aifans/aifans/app/models"
	"gorm.io/gorm"
)

type membershipProductRepository struct {
	db *gorm.DB
}

func NewMembershipProductRepository(db *gorm.DB) MembershipProductRepository {
	return &membershipProductRepository{db: db}
}

func (r *membershipProductRepository) Create(ctx context.Context, product *models.MembershipProduct) error {
	return conn(ctx, r.db).Create(product).Error
}

func (r *membershipProductRepository) GetByID(ctx context.Context, id uint) (*models.MembershipProduct, error) {
	var p models.MembershipProduct
	if err := conn(ctx, r.db).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *membershipProductRepository) Update(ctx context.Context, product *models.MembershipProduct) error {
	return conn(ctx, r.db).Save(product).Error
}

func (r *membershipProductRepository) Delete(ctx context.Context, id uint) error {
	res := conn(ctx, r.db).Delete(&models.MembershipProduct{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListActive returns products visible in the public catalog.
func (r *membershipProductRepository) ListActive(ctx context.Context) ([]models.MembershipProduct, error) {
	var products []models.MembershipProduct
	err := conn(ctx, r.db).
		Where("is_active = ?", true).
		Order("sort_order ASC, id ASC").
		Find(&products).Error
	return products, err
}

func (r *membershipProductRepository) ListAll(ctx context.Context) ([]models.MembershipProduct, error) {
	var products []models.MembershipProduct
	err := conn(ctx, r.db).Order("sort_order ASC, id ASC").Find(&products).Error
	return products, err
}
