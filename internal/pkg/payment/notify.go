package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/internal/pkg/alipay"
	"github.com/aifans/aifans/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NotifyResult is the acknowledgement body returned to the gateway.
type NotifyResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ack(msg string) NotifyResult    { return NotifyResult{Success: true, Message: msg} }
func reject(msg string) NotifyResult { return NotifyResult{Success: false, Message: msg} }

// HandleNotification processes one asynchronous gateway notification. It never
// returns an error: every outcome is an acknowledgement body, and every
// notification is recorded in the audit table.
func (s *Service) HandleNotification(ctx context.Context, form url.Values) NotifyResult {
	n := alipay.ParseNotification(form)

	gw, gwErr := s.provider.Current(ctx)
	verified := false
	if gwErr == nil {
		if err := gw.VerifyNotification(form); err != nil {
			log.Warnf("[Alipay] notification signature check failed for %s: %v", n.OutTradeNo, err)
		} else {
			verified = true
		}
	}

	audit := s.recordNotification(ctx, n, form, verified)
	result, procErr := s.processNotification(ctx, n, gw, gwErr, verified)
	s.finishNotification(ctx, audit, result, procErr)
	return result
}

func (s *Service) processNotification(ctx context.Context, n alipay.Notification, gw Gateway, gwErr error, verified bool) (NotifyResult, error) {
	if gwErr != nil {
		log.Errorf("[Alipay] notification for %s received without a usable gateway: %v", n.OutTradeNo, gwErr)
		return reject("支付配置不可用"), gwErr
	}
	if !verified {
		if !(s.allowUnverifiedSandbox && gw.IsSandbox()) {
			return reject("签名验证失败"), nil
		}
		log.Warnf("[Alipay] accepting unverified sandbox notification for %s", n.OutTradeNo)
	}

	if n.AppID != "" && n.AppID != gw.AppID() {
		log.Warnf("[Alipay] notification app_id %s does not match %s", n.AppID, gw.AppID())
		return reject("app_id 不匹配"), nil
	}

	orderID, err := ParseOutTradeNo(n.OutTradeNo)
	if err != nil {
		return reject("订单号无效"), err
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return reject("订单不存在"), nil
		}
		return reject("处理失败"), err
	}

	// Duplicate deliveries of a paid order are acknowledged untouched.
	if order.IsPaid() {
		return ack("订单已处理"), nil
	}

	if n.TotalAmount != "" {
		amount, err := decimal.NewFromString(n.TotalAmount)
		if err != nil || !amount.Equal(order.Amount) {
			log.Warnf("[Alipay] amount mismatch for order %d: notified %s, expected %s", order.ID, n.TotalAmount, order.Amount.StringFixed(2))
			return reject("金额不匹配"), nil
		}
	}

	switch {
	case n.IsPaid():
		completed, err := s.completeOrder(ctx, order, n.TradeNo)
		if err != nil {
			log.Errorf("[Payment] failed to complete order %d: %v", order.ID, err)
			return reject("处理失败"), err
		}
		if !completed {
			return ack("订单已处理"), nil
		}
		return ack("支付成功"), nil
	case n.IsClosed():
		failed, err := s.orders.MarkFailed(ctx, order.ID, alipay.TradeStatusClosed)
		if err != nil {
			return reject("处理失败"), err
		}
		if failed {
			s.counter.Add(ctx, counter.OrdersFailed, 1)
			log.Infof("[Payment] order %d closed by gateway", order.ID)
		}
		return ack("订单已关闭"), nil
	default:
		return ack("已收到通知"), nil
	}
}

func (s *Service) recordNotification(ctx context.Context, n alipay.Notification, form url.Values, verified bool) *models.PaymentNotification {
	payload, err := json.Marshal(form)
	if err != nil {
		payload = []byte("{}")
	}
	row := &models.PaymentNotification{
		Provider:       "alipay",
		NotifyID:       n.NotifyID,
		OutTradeNo:     n.OutTradeNo,
		TradeStatus:    n.TradeStatus,
		PayloadJSON:    string(payload),
		SignatureValid: verified,
	}
	if err := s.notifications.Create(ctx, row); err != nil {
		log.Warnf("[Payment] failed to record notification for %s: %v", n.OutTradeNo, err)
		return nil
	}
	return row
}

func (s *Service) finishNotification(ctx context.Context, row *models.PaymentNotification, result NotifyResult, procErr error) {
	if row == nil {
		return
	}
	errText := ""
	if procErr != nil {
		errText = procErr.Error()
	}
	if err := s.notifications.MarkProcessed(ctx, row.ID, result.Message, errText); err != nil {
		log.Warnf("[Payment] failed to update notification %d: %v", row.ID, err)
	}
}
