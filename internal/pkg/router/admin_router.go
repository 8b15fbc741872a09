package router

import (
	"github.com/aifans/aifans/app/controllers"
	"github.com/aifans/aifans/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

type AdminRouter struct {
	ctrl *controllers.Controllers
	auth fiber.Handler
}

func NewAdminRouter(ctrl *controllers.Controllers, auth fiber.Handler) *AdminRouter {
	return &AdminRouter{ctrl: ctrl, auth: auth}
}

func (h AdminRouter) InstallRouter(app *fiber.App) {
	adminGroup := app.Group("/admin", h.auth, middleware.RequireAdmin)
	am := h.ctrl.AdminMembership

	// Catalog
	adminGroup.Get("/membership/products", am.HandleListProducts)
	adminGroup.Post("/membership/products", am.HandleCreateProduct)
	adminGroup.Put("/membership/products/:id", am.HandleUpdateProduct)
	adminGroup.Delete("/membership/products/:id", am.HandleDeleteProduct)

	// Redemption codes
	adminGroup.Get("/membership/codes", am.HandleListCodes)
	adminGroup.Post("/membership/codes", am.HandleIssueCodes)
	adminGroup.Delete("/membership/codes/:id", am.HandleDeleteCode)

	// Orders, gateway settings, counters
	adminGroup.Get("/membership/orders", am.HandleListOrders)
	adminGroup.Get("/membership/payment-settings", am.HandleGetSettings)
	adminGroup.Put("/membership/payment-settings", am.HandleSaveSettings)
	adminGroup.Get("/membership/stats", am.HandleStats)
	adminGroup.Post("/membership/sweep", am.HandleSweep)

	// Storage
	adminGroup.Post("/storage/migrate-oss", h.ctrl.Files.HandleMigrateToOSS)
}
