package router

import (
	"time"

	"github.com/aifans/aifans/app/controllers"
	"github.com/aifans/aifans/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

const (
	redeemLimit  = 10
	redeemWindow = time.Minute
	orderLimit   = 20
	orderWindow  = time.Minute
)

// ApiRouter holds the user-facing routes: accounts, catalog, orders,
// redemption and files.
type ApiRouter struct {
	ctrl *controllers.Controllers
	auth fiber.Handler
	opts Options
}

func NewApiRouter(ctrl *controllers.Controllers, auth fiber.Handler, opts Options) *ApiRouter {
	return &ApiRouter{ctrl: ctrl, auth: auth, opts: opts}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	authGroup := app.Group("/auth")
	authGroup.Post("/register", h.ctrl.Auth.HandleRegister)
	authGroup.Post("/login", h.ctrl.Auth.HandleLogin)
	authGroup.Get("/me", h.auth, h.ctrl.Auth.HandleMe)

	payments := app.Group("/payments")
	// Gateway callbacks carry no bearer token.
	payments.Post("/alipay-notify", h.ctrl.Payment.HandleAlipayNotify)
	payments.Post("/alipay/notify", h.ctrl.Payment.HandleAlipayNotify)
	payments.Post("/create-order", h.auth,
		middleware.PerUserLimiter(orderLimit, orderWindow, h.opts.LimiterStorage),
		h.ctrl.Payment.HandleCreateOrder)
	payments.Get("/order-status/:id", h.auth, h.ctrl.Payment.HandleOrderStatus)
	payments.Get("/orders", h.auth, h.ctrl.Payment.HandleListMyOrders)
	payments.Post("/refresh-alipay-config", h.auth, middleware.RequireAdmin, h.ctrl.Payment.HandleRefreshAlipayConfig)
	if h.opts.MockPayments {
		payments.Get("/mock-pay", h.auth, h.ctrl.Payment.HandleMockPay)
		payments.Post("/mock-success", h.auth, h.ctrl.Payment.HandleMockSuccess)
	}

	membership := app.Group("/membership")
	membership.Get("/products", h.ctrl.Membership.HandleListProducts)
	membership.Post("/redeem", h.auth,
		middleware.PerUserLimiter(redeemLimit, redeemWindow, h.opts.LimiterStorage),
		h.ctrl.Membership.HandleRedeem)
	membership.Get("/status", h.auth, h.ctrl.Membership.HandleStatus)

	files := app.Group("/files", h.auth)
	files.Post("/upload", h.ctrl.Files.HandleUpload)
	files.Get("/*", h.ctrl.Files.HandleServe)
}
