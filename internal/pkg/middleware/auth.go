package middleware

import (
	"errors"
	"strings"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/aifans/aifans/internal/pkg/security"
	"github.com/aifans/aifans/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// TokenParser is satisfied by *security.TokenIssuer.
type TokenParser interface {
	Parse(token string) (*security.Claims, error)
}

// RequireAuth authenticates the bearer token and loads the user, so role
// changes apply to tokens issued before them.
func RequireAuth(tokens TokenParser, users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			return apperror.Unauthorized("请先登录")
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			return apperror.Unauthorized("登录已失效")
		}

		user, err := users.GetByID(c.UserContext(), claims.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.Unauthorized("登录已失效")
			}
			log.Errorf("[Auth] loading user %d failed: %v", claims.UserID, err)
			return apperror.Internal("加载用户失败", err)
		}
		if !user.IsActive() {
			return apperror.Forbidden("账号已被禁用")
		}

		usercontext.Set(c, usercontext.UserContext{
			UserID:     user.ID,
			Email:      user.Email,
			Name:       user.Name,
			Role:       user.Role,
			IsLoggedIn: true,
			IsAdmin:    user.Role == models.ROLE_ADMIN,
		})
		return c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn {
		return apperror.Unauthorized("请先登录")
	}
	if !uc.IsAdmin {
		return apperror.Forbidden("需要管理员权限")
	}
	return c.Next()
}

func bearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
