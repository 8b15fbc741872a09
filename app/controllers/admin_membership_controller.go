package controllers

import (
	"context"
	"strconv"

	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/aifans/aifans/internal/pkg/membership"
	"github.com/aifans/aifans/internal/pkg/payment"
	"github.com/aifans/aifans/internal/pkg/scheduler"
	"github.com/aifans/aifans/internal/pkg/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// AdminMembershipController serves the /api/admin membership screens:
// catalog, redemption codes, orders, Alipay settings and counters.
type AdminMembershipController struct {
	catalog  *membership.CatalogService
	codes    *membership.CodeService
	sweeper  *membership.Sweeper
	jobs     JobRunner
	payments *payment.Service
	settings *payment.SettingsService
	users    repository.UserRepository
	stats    StatsReader
}

func NewAdminMembershipController(svc *Services) *AdminMembershipController {
	jobs := svc.Jobs
	if jobs == nil {
		jobs = scheduler.New(scheduler.Config{}, scheduler.NopLocker{})
	}
	return &AdminMembershipController{
		catalog:  svc.Catalog,
		codes:    svc.Codes,
		sweeper:  svc.Sweeper,
		jobs:     jobs,
		payments: svc.Payments,
		settings: svc.Settings,
		users:    svc.Users,
		stats:    svc.Stats,
	}
}

type issueCodesRequest struct {
	DurationDays int `json:"durationDays" validate:"required,gte=1"`
	Count        int `json:"count" validate:"omitempty,gte=1"`
}

// Products

func (ac *AdminMembershipController) HandleListProducts(c *fiber.Ctx) error {
	products, err := ac.catalog.ListAllProducts(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": products})
}

func (ac *AdminMembershipController) HandleCreateProduct(c *fiber.Ctx) error {
	var in membership.ProductInput
	if err := validation.BindAndValidate(c, &in); err != nil {
		return err
	}
	product, err := ac.catalog.CreateProduct(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

func (ac *AdminMembershipController) HandleUpdateProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in membership.ProductInput
	if err := validation.BindAndValidate(c, &in); err != nil {
		return err
	}
	product, err := ac.catalog.UpdateProduct(c.UserContext(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(product)
}

func (ac *AdminMembershipController) HandleDeleteProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := ac.catalog.DeleteProduct(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Redemption codes

func (ac *AdminMembershipController) HandleListCodes(c *fiber.Ctx) error {
	page, limit, offset := pagination(c)
	filter := repository.CodeFilter{Offset: offset, Limit: limit}
	if raw := c.Query("used"); raw != "" {
		used, err := strconv.ParseBool(raw)
		if err != nil {
			return apperror.BadRequest("used 参数无效")
		}
		filter.Used = &used
	}
	codes, total, err := ac.codes.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(paged(codes, total, page, limit))
}

func (ac *AdminMembershipController) HandleIssueCodes(c *fiber.Ctx) error {
	var req issueCodesRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Count == 0 {
		req.Count = 1
	}
	codes, err := ac.codes.IssueBatch(c.UserContext(), req.DurationDays, req.Count)
	if err != nil {
		if len(codes) == 0 {
			return err
		}
		log.Warnf("[Admin] code batch stopped after %d codes: %v", len(codes), err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"items": codes, "count": len(codes)})
}

func (ac *AdminMembershipController) HandleDeleteCode(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := ac.codes.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Orders

func (ac *AdminMembershipController) HandleListOrders(c *fiber.Ctx) error {
	page, limit, offset := pagination(c)
	filter := repository.OrderFilter{
		Status: c.Query("status"),
		UserID: uint(c.QueryInt("userId", 0)),
		Offset: offset,
		Limit:  limit,
	}
	orders, total, err := ac.payments.ListOrders(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(paged(orders, total, page, limit))
}

// Alipay settings

func (ac *AdminMembershipController) HandleGetSettings(c *fiber.Ctx) error {
	view, err := ac.settings.Get(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(view)
}

func (ac *AdminMembershipController) HandleSaveSettings(c *fiber.Ctx) error {
	var in payment.SettingsInput
	if err := validation.BindAndValidate(c, &in); err != nil {
		return err
	}
	view, err := ac.settings.Save(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// Stats and maintenance

func (ac *AdminMembershipController) HandleStats(c *fiber.Ctx) error {
	roles, err := ac.users.CountByRole(c.UserContext())
	if err != nil {
		return apperror.Internal("加载统计失败", err)
	}
	resp := fiber.Map{"roles": roles, "daily": []any{}}
	if ac.stats != nil {
		daily, err := ac.stats.Last(c.UserContext(), c.QueryInt("days", 7))
		if err != nil {
			log.Warnf("[Admin] reading counters failed: %v", err)
		} else {
			resp["daily"] = daily
		}
	}
	return c.JSON(resp)
}

// HandleSweep runs the sweep under the scheduler's lock. When the cron job or
// another replica holds it, nothing runs and ran is false.
func (ac *AdminMembershipController) HandleSweep(c *fiber.Ctx) error {
	var downgraded int64
	ran, err := ac.jobs.RunLocked(c.UserContext(), membership.SweepJobName, func(ctx context.Context) error {
		n, err := ac.sweeper.Run(ctx)
		downgraded = n
		return err
	})
	if err != nil {
		return apperror.Internal("会员过期处理失败", err)
	}
	if !ran {
		log.Info("[Admin] manual sweep skipped, lock held")
	}
	return c.JSON(fiber.Map{"ran": ran, "downgraded": downgraded})
}
