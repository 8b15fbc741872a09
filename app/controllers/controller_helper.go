package controllers

import (
	"strconv"

	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// paramID reads a positive integer route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || v == 0 {
		return 0, apperror.BadRequest("无效的ID")
	}
	return uint(v), nil
}

// pagination reads page (1-based) and limit query parameters.
func pagination(c *fiber.Ctx) (page, limit, offset int) {
	page = c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit = c.QueryInt("limit", defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit, (page - 1) * limit
}

func paged(items any, total int64, page, limit int) fiber.Map {
	return fiber.Map{
		"items": items,
		"total": total,
		"page":  page,
		"limit": limit,
	}
}
