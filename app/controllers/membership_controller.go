package controllers

import (
	"errors"
	"time"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/aifans/aifans/internal/pkg/membership"
	"github.com/aifans/aifans/internal/pkg/usercontext"
	"github.com/aifans/aifans/internal/pkg/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type MembershipController struct {
	catalog *membership.CatalogService
	codes   *membership.CodeService
	users   repository.UserRepository
}

func NewMembershipController(catalog *membership.CatalogService, codes *membership.CodeService, users repository.UserRepository) *MembershipController {
	return &MembershipController{catalog: catalog, codes: codes, users: users}
}

type redeemRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

func (mc *MembershipController) HandleListProducts(c *fiber.Ctx) error {
	products, err := mc.catalog.ListProducts(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": products})
}

func (mc *MembershipController) HandleRedeem(c *fiber.Ctx) error {
	var req redeemRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := mc.codes.Redeem(c.UserContext(), usercontext.GetUserID(c), req.Code)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (mc *MembershipController) HandleStatus(c *fiber.Ctx) error {
	user, err := mc.users.GetByID(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("用户不存在")
		}
		return apperror.Internal("加载用户失败", err)
	}
	now := time.Now()
	var remaining *int
	if user.Role == models.ROLE_PREMIUM && user.PremiumExpiryDate != nil && user.PremiumExpiryDate.After(now) {
		days := int(user.PremiumExpiryDate.Sub(now).Hours()/24) + 1
		remaining = &days
	}
	return c.JSON(fiber.Map{
		"role":              user.Role,
		"premiumExpiryDate": user.PremiumExpiryDate,
		"hasPremiumAccess":  user.HasPremiumAccess(now),
		"isLifetime":        user.Role == models.ROLE_LIFETIME,
		"remainingDays":     remaining,
	})
}
