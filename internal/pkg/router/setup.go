package router

import (
	"time"

	"github.com/aifans/aifans/app/controllers"
	"github.com/aifans/aifans/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

// Router registers one slice of the HTTP surface.
type Router interface {
	InstallRouter(app *fiber.App)
}

type Options struct {
	// MockPayments registers /payments/mock-*; never set in production.
	MockPayments bool
	// LimiterStorage backs the per-user rate limiters. Nil keeps counters in
	// memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, svc *controllers.Services, opts Options) {
	ctrl := controllers.New(svc)
	auth := middleware.RequireAuth(svc.Tokens, svc.Users)

	setup(app,
		NewHealthRouter(),
		NewApiRouter(ctrl, auth, opts),
		NewAdminRouter(ctrl, auth),
	)
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}

type HealthRouter struct{}

func NewHealthRouter() *HealthRouter {
	return &HealthRouter{}
}

func (h HealthRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC()})
	})
}
