package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/aifans/aifans/internal/pkg/security"
	"github.com/aifans/aifans/internal/pkg/usercontext"
	"github.com/aifans/aifans/internal/pkg/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

type AuthController struct {
	users  repository.UserRepository
	tokens *security.TokenIssuer
}

func NewAuthController(users repository.UserRepository, tokens *security.TokenIssuer) *AuthController {
	return &AuthController{users: users, tokens: tokens}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=150"`
	Email    string `json:"email" validate:"required,email,max=200"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileView is the user projection returned by the auth endpoints.
type ProfileView struct {
	ID                uint       `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Role              string     `json:"role"`
	PremiumExpiryDate *time.Time `json:"premiumExpiryDate"`
	HasPremiumAccess  bool       `json:"hasPremiumAccess"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func profileOf(u *models.User) ProfileView {
	return ProfileView{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		Role:              u.Role,
		PremiumExpiryDate: u.PremiumExpiryDate,
		HasPremiumAccess:  u.HasPremiumAccess(time.Now()),
		CreatedAt:         u.CreatedAt,
	}
}

func (ac *AuthController) HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := models.CreateUser(strings.TrimSpace(req.Name), req.Email, req.Password)
	if err != nil {
		return apperror.BadRequest("注册信息无效").Wrap(err)
	}
	if _, err := ac.users.GetByEmail(c.UserContext(), user.Email); err == nil {
		return apperror.Conflict("邮箱已被注册")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.Internal("注册失败", err)
	}
	// The unique index still catches a concurrent registration.
	if err := ac.users.Create(c.UserContext(), user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("邮箱已被注册")
		}
		return apperror.Internal("注册失败", err)
	}
	log.Infof("[Auth] user %d registered", user.ID)

	return ac.respondWithToken(c, fiber.StatusCreated, user)
}

func (ac *AuthController) HandleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := ac.users.GetByEmail(c.UserContext(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Unauthorized("邮箱或密码错误")
		}
		return apperror.Internal("登录失败", err)
	}
	if !models.CheckPasswordHash(req.Password, user.Password) {
		return apperror.Unauthorized("邮箱或密码错误")
	}
	if !user.IsActive() {
		return apperror.Forbidden("账号已被禁用")
	}

	if err := ac.users.UpdateLastLogin(c.UserContext(), user.ID, time.Now().UTC()); err != nil {
		log.Warnf("[Auth] updating last login for user %d failed: %v", user.ID, err)
	}
	return ac.respondWithToken(c, fiber.StatusOK, user)
}

func (ac *AuthController) respondWithToken(c *fiber.Ctx, status int, user *models.User) error {
	token, exp, err := ac.tokens.Issue(user)
	if err != nil {
		return apperror.Internal("生成令牌失败", err)
	}
	return c.Status(status).JSON(fiber.Map{
		"token":     token,
		"expiresAt": exp.UTC(),
		"user":      profileOf(user),
	})
}

func (ac *AuthController) HandleMe(c *fiber.Ctx) error {
	user, err := ac.users.GetByID(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("用户不存在")
		}
		return apperror.Internal("加载用户失败", err)
	}
	return c.JSON(profileOf(user))
}
