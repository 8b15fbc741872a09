package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext is the authenticated caller of a request.
type UserContext struct {
	UserID     uint   `json:"userId"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	IsLoggedIn bool   `json:"isLoggedIn"`
	IsAdmin    bool   `json:"isAdmin"`
}

// Set stores uc on the request.
func Set(c *fiber.Ctx, uc UserContext) {
	c.Locals(KeyUserContext, uc)
	c.Locals(KeyUserID, uc.UserID)
	c.Locals(KeyIsAdmin, uc.IsAdmin)
}

// GetUserContext returns the caller, or an anonymous context.
func GetUserContext(c *fiber.Ctx) UserContext {
	if uc, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return uc
	}
	return UserContext{}
}

func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetUserID returns the caller's id, or 0 when anonymous.
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}
