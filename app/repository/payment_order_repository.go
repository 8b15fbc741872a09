package repository

import (
	"context"
	"time"

	"github.com/aifans/aifans/app/models"
	"gorm.io/gorm"
)

// fail_reason is VARCHAR(255), which MySQL measures in characters.
const maxFailReasonRunes = 255

type paymentOrderRepository struct {
	db *gorm.DB
}

func NewPaymentOrderRepository(db *gorm.DB) PaymentOrderRepository {
	return &paymentOrderRepository{db: db}
}

func (r *paymentOrderRepository) Create(ctx context.Context, order *models.PaymentOrder) error {
	return conn(ctx, r.db).Create(order).Error
}

func (r *paymentOrderRepository) GetByID(ctx context.Context, id uint) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := conn(ctx, r.db).Preload("Product").First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *paymentOrderRepository) SetQRCode(ctx context.Context, id uint, qrCode string) error {
	return conn(ctx, r.db).Model(&models.PaymentOrder{}).
		Where("id = ?", id).
		Update("qr_code", qrCode).Error
}

// MarkPaid moves a not-yet-paid order to SUCCESS. It returns false when the
// order was already SUCCESS, which callers treat as a duplicate delivery.
func (r *paymentOrderRepository) MarkPaid(ctx context.Context, id uint, tradeNo string, paidAt time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&models.PaymentOrder{}).
		Where("id = ? AND status <> ?", id, models.ORDER_STATUS_SUCCESS).
		Updates(map[string]any{
			"status":          models.ORDER_STATUS_SUCCESS,
			"alipay_trade_no": tradeNo,
			"paid_at":         paidAt,
			"fail_reason":     "",
		})
	return res.RowsAffected == 1, res.Error
}

// MarkFailed only applies to PENDING orders so a late close can never undo a
// payment.
func (r *paymentOrderRepository) MarkFailed(ctx context.Context, id uint, reason string) (bool, error) {
	if r := []rune(reason); len(r) > maxFailReasonRunes {
		reason = string(r[:maxFailReasonRunes])
	}
	res := conn(ctx, r.db).Model(&models.PaymentOrder{}).
		Where("id = ? AND status = ?", id, models.ORDER_STATUS_PENDING).
		Updates(map[string]any{
			"status":      models.ORDER_STATUS_FAILED,
			"fail_reason": reason,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *paymentOrderRepository) List(ctx context.Context, filter OrderFilter) ([]models.PaymentOrder, int64, error) {
	q := conn(ctx, r.db).Model(&models.PaymentOrder{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var orders []models.PaymentOrder
	err := q.Preload("Product").
		Order("id DESC").
		Offset(filter.Offset).
		Limit(limit).
		Find(&orders).Error
	return orders, total, err
}

func (r *paymentOrderRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]models.PaymentOrder, error) {
	if limit <= 0 {
		limit = 20
	}
	var orders []models.PaymentOrder
	err := conn(ctx, r.db).
		Preload("Product").
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *paymentOrderRepository) CountByProduct(ctx context.Context, productID uint) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&models.PaymentOrder{}).Where("product_id = ?", productID).Count(&n).Error
	return n, err
}
