package repository

import (
	"context"
	"errors"

	"github.com/aifans/aifans/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentSettingsRepository struct {
	db *gorm.DB
}

func NewPaymentSettingsRepository(db *gorm.DB) PaymentSettingsRepository {
	return &paymentSettingsRepository{db: db}
}

// Get returns the settings row, or nil without error when none was saved yet.
func (r *paymentSettingsRepository) Get(ctx context.Context) (*models.PaymentSettings, error) {
	var s models.PaymentSettings
	err := conn(ctx, r.db).First(&s, models.PAYMENT_SETTINGS_ID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Save upserts the singleton row. The ID is always forced to the fixed key.
func (r *paymentSettingsRepository) Save(ctx context.Context, settings *models.PaymentSettings) error {
	settings.ID = models.PAYMENT_SETTINGS_ID
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"alipay_app_id",
			"alipay_private_key",
			"alipay_public_key",
			"gateway_url",
			"notify_url",
			"sandbox",
			"updated_at",
		}),
	}).Create(settings).Error
}
