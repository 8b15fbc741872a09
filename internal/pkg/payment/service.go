// Package payment is the order ledger: order creation against the gateway,
// notification handling and the status transitions that trigger grants.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/alipay"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/aifans/aifans/internal/pkg/membership"
	"github.com/aifans/aifans/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	orderTimeout     = "30m"
	maxFailReasonLen = 255
	userOrdersLimit  = 50
)

type Service struct {
	tx            repository.Transactor
	orders        repository.PaymentOrderRepository
	products      repository.MembershipProductRepository
	notifications repository.PaymentNotificationRepository
	granter       *membership.Granter
	provider      *Provider
	counter       counter.Recorder
	now           func() time.Time

	allowUnverifiedSandbox bool
	mockEnabled            bool
}

type Option func(*Service)

// WithSandboxLeniency accepts notifications that fail verification while the
// active gateway is in sandbox mode.
func WithSandboxLeniency(enabled bool) Option {
	return func(s *Service) { s.allowUnverifiedSandbox = enabled }
}

// WithMockPayments enables MockSuccess.
func WithMockPayments(enabled bool) Option {
	return func(s *Service) { s.mockEnabled = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCounter(rec counter.Recorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.counter = rec
		}
	}
}

func NewService(repos *repository.Repositories, granter *membership.Granter, provider *Provider, opts ...Option) *Service {
	s := &Service{
		tx:            repos.Tx,
		orders:        repos.Order,
		products:      repos.Product,
		notifications: repos.PaymentNotification,
		granter:       granter,
		provider:      provider,
		counter:       counter.Nop{},
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateOrderResult struct {
	OrderID    uint            `json:"orderId"`
	OutTradeNo string          `json:"outTradeNo"`
	QRCode     string          `json:"qrCode"`
	Amount     decimal.Decimal `json:"amount"`
}

// CreateOrder records a PENDING order at the product's current price and asks
// the gateway for a QR code. A gateway failure leaves the order FAILED.
func (s *Service) CreateOrder(ctx context.Context, userID, productID uint) (*CreateOrderResult, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("会员产品不存在")
		}
		return nil, apperror.Internal("查询会员产品失败", err)
	}
	if !product.IsActive {
		return nil, apperror.NotFound("会员产品不存在")
	}

	order := &models.PaymentOrder{
		UserID:    userID,
		ProductID: product.ID,
		Amount:    product.Price,
		Status:    models.ORDER_STATUS_PENDING,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, apperror.Internal("创建订单失败", err)
	}
	outTradeNo := FormatOutTradeNo(order.ID)

	resp, err := s.precreate(ctx, product, outTradeNo)
	if err != nil {
		log.Errorf("[Payment] precreate failed for order %d (user %d, product %d): %v", order.ID, userID, product.ID, err)
		if _, mErr := s.orders.MarkFailed(ctx, order.ID, truncate(err.Error(), maxFailReasonLen)); mErr != nil {
			log.Errorf("[Payment] failed to mark order %d as failed: %v", order.ID, mErr)
		}
		s.counter.Add(ctx, counter.OrdersFailed, 1)
		return nil, apperror.BadRequest("创建支付订单失败").Wrap(err)
	}

	if err := s.orders.SetQRCode(ctx, order.ID, resp.QRCode); err != nil {
		log.Warnf("[Payment] failed to store qr code for order %d: %v", order.ID, err)
	}
	s.counter.Add(ctx, counter.OrdersCreated, 1)
	log.Infof("[Payment] order %d created for user %d, product %d, amount %s", order.ID, userID, product.ID, product.Price.StringFixed(2))

	return &CreateOrderResult{
		OrderID:    order.ID,
		OutTradeNo: outTradeNo,
		QRCode:     resp.QRCode,
		Amount:     product.Price,
	}, nil
}

func (s *Service) precreate(ctx context.Context, product *models.MembershipProduct, outTradeNo string) (*alipay.PreCreateResponse, error) {
	gw, err := s.provider.Current(ctx)
	if err != nil {
		return nil, err
	}
	return gw.PreCreate(ctx, alipay.PreCreateRequest{
		OutTradeNo:     outTradeNo,
		TotalAmount:    product.Price.StringFixed(2),
		Subject:        product.Title,
		Body:           truncate(product.Description, 128),
		TimeoutExpress: orderTimeout,
	})
}

type OrderStatusView struct {
	OrderID      uint            `json:"orderId"`
	OutTradeNo   string          `json:"outTradeNo"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	ProductID    uint            `json:"productId"`
	ProductTitle string          `json:"productTitle,omitempty"`
	FailReason   string          `json:"failReason,omitempty"`
	PaidAt       *time.Time      `json:"paidAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (s *Service) GetOrderStatus(ctx context.Context, orderID, userID uint) (*OrderStatusView, error) {
	order, err := s.loadOwnedOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	view := &OrderStatusView{
		OrderID:    order.ID,
		OutTradeNo: FormatOutTradeNo(order.ID),
		Status:     order.Status,
		Amount:     order.Amount,
		ProductID:  order.ProductID,
		FailReason: order.FailReason,
		PaidAt:     order.PaidAt,
		CreatedAt:  order.CreatedAt,
	}
	if order.Product != nil {
		view.ProductTitle = order.Product.Title
	}
	return view, nil
}

func (s *Service) loadOwnedOrder(ctx context.Context, orderID, userID uint) (*models.PaymentOrder, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("订单不存在")
		}
		return nil, apperror.Internal("查询订单失败", err)
	}
	if order.UserID != userID {
		return nil, apperror.Unauthorized("无权访问该订单")
	}
	return order, nil
}

// MockSuccess completes an order without the gateway. Disabled in production.
func (s *Service) MockSuccess(ctx context.Context, orderID, userID uint) error {
	if !s.mockEnabled {
		return apperror.Forbidden("模拟支付不可用")
	}
	order, err := s.loadOwnedOrder(ctx, orderID, userID)
	if err != nil {
		return err
	}
	if order.IsPaid() {
		return nil
	}
	if _, err := s.completeOrder(ctx, order, "MOCK_"+uuid.NewString()); err != nil {
		return apperror.Internal("模拟支付失败", err)
	}
	log.Warnf("[Payment] order %d completed by mock payment", order.ID)
	return nil
}

// completeOrder flips the order to SUCCESS and grants the product in one
// transaction. It reports false when the order was already paid.
func (s *Service) completeOrder(ctx context.Context, order *models.PaymentOrder, tradeNo string) (bool, error) {
	completed := false
	err := s.tx.Exec(ctx, func(ctx context.Context) error {
		marked, err := s.orders.MarkPaid(ctx, order.ID, tradeNo, s.now())
		if err != nil {
			return err
		}
		if !marked {
			return nil
		}

		product := order.Product
		if product == nil {
			if product, err = s.products.GetByID(ctx, order.ProductID); err != nil {
				return err
			}
		}
		if _, err := s.granter.Grant(ctx, order.UserID, product.Type, product.DurationDays); err != nil {
			return err
		}
		completed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if completed {
		s.counter.Add(ctx, counter.OrdersPaid, 1)
		log.Infof("[Payment] order %d paid (trade %s), membership granted to user %d", order.ID, tradeNo, order.UserID)
	}
	return completed, nil
}

func (s *Service) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]models.PaymentOrder, int64, error) {
	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, 0, apperror.Internal("查询订单失败", err)
	}
	return orders, total, nil
}

func (s *Service) ListUserOrders(ctx context.Context, userID uint) ([]models.PaymentOrder, error) {
	orders, err := s.orders.ListByUser(ctx, userID, userOrdersLimit)
	if err != nil {
		return nil, apperror.Internal("查询订单失败", err)
	}
	return orders, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
