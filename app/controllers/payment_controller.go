package controllers

import (
	"net/url"

	"github.com/aifans/aifans/internal/pkg/payment"
	"github.com/aifans/aifans/internal/pkg/usercontext"
	"github.com/aifans/aifans/internal/pkg/validation"
	"github.com/gofiber/fiber/v2"
)

type PaymentController struct {
	payments *payment.Service
	provider *payment.Provider
}

func NewPaymentController(payments *payment.Service, provider *payment.Provider) *PaymentController {
	return &PaymentController{payments: payments, provider: provider}
}

type createOrderRequest struct {
	ProductID uint `json:"productId" validate:"required,gt=0"`
}

type orderIDRequest struct {
	OrderID uint `json:"orderId" validate:"required,gt=0"`
}

func (pc *PaymentController) HandleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := pc.payments.CreateOrder(c.UserContext(), usercontext.GetUserID(c), req.ProductID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (pc *PaymentController) HandleOrderStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	view, err := pc.payments.GetOrderStatus(c.UserContext(), id, usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (pc *PaymentController) HandleListMyOrders(c *fiber.Ctx) error {
	orders, err := pc.payments.ListUserOrders(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": orders})
}

// HandleAlipayNotify always answers 200; the body tells the gateway whether
// the notification was accepted.
func (pc *PaymentController) HandleAlipayNotify(c *fiber.Ctx) error {
	result := pc.payments.HandleNotification(c.UserContext(), notifyValues(c))
	return c.Status(fiber.StatusOK).JSON(result)
}

// notifyValues merges query and form parameters; form values win.
func notifyValues(c *fiber.Ctx) url.Values {
	values := url.Values{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		values.Set(string(k), string(v))
	})
	c.Context().PostArgs().VisitAll(func(k, v []byte) {
		values.Set(string(k), string(v))
	})
	return values
}

func (pc *PaymentController) HandleMockPay(c *fiber.Ctx) error {
	orderID := c.QueryInt("orderId", 0)
	if orderID <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "orderId is required")
	}
	return c.JSON(fiber.Map{
		"orderId": orderID,
		"mock":    true,
		"confirm": fiber.Map{
			"method": fiber.MethodPost,
			"path":   "/payments/mock-success",
			"body":   fiber.Map{"orderId": orderID},
		},
	})
}

func (pc *PaymentController) HandleMockSuccess(c *fiber.Ctx) error {
	var req orderIDRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	if err := pc.payments.MockSuccess(c.UserContext(), req.OrderID, usercontext.GetUserID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "orderId": req.OrderID})
}

func (pc *PaymentController) HandleRefreshAlipayConfig(c *fiber.Ctx) error {
	res, err := pc.provider.Refresh(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(res)
}
