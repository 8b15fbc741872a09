package repository

import (
	"context"
	"time"

	"github.com/aifans/aifans/app/models"
	"gorm.io/gorm"
)

type paymentNotificationRepository struct {
	db *gorm.DB
}

func NewPaymentNotificationRepository(db *gorm.DB) PaymentNotificationRepository {
	return &paymentNotificationRepository{db: db}
}

func (r *paymentNotificationRepository) Create(ctx context.Context, n *models.PaymentNotification) error {
	return conn(ctx, r.db).Create(n).Error
}

func (r *paymentNotificationRepository) MarkProcessed(ctx context.Context, id uint, result, processingError string) error {
	if len(result) > 255 {
		result = result[:255]
	}
	return conn(ctx, r.db).Model(&models.PaymentNotification{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"result":           result,
			"processing_error": processingError,
			"processed_at":     time.Now().UTC(),
		}).Error
}
