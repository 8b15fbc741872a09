package apperror

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// FiberErrorHandler renders typed errors as JSON. Anything unknown becomes a
// 500 with a generic message.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	if ae, ok := As(err); ok {
		if ae.Kind == KindInternal {
			log.Errorf("[HTTP] %s %s: %v", c.Method(), c.Path(), ae)
		}
		body := fiber.Map{
			"error":   string(ae.Kind),
			"message": ae.Message,
		}
		if len(ae.Fields) > 0 {
			body["fields"] = ae.Fields
		}
		return c.Status(ae.Status()).JSON(body)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error":   kindForStatus(fe.Code),
			"message": fe.Message,
		})
	}

	log.Errorf("[HTTP] %s %s: unhandled error: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   string(KindInternal),
		"message": "internal server error",
	})
}

func kindForStatus(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return string(KindBadRequest)
	case fiber.StatusNotFound:
		return string(KindNotFound)
	case fiber.StatusUnauthorized:
		return string(KindUnauthorized)
	case fiber.StatusForbidden:
		return string(KindForbidden)
	case fiber.StatusConflict:
		return string(KindConflict)
	case fiber.StatusTooManyRequests:
		return "too_many_requests"
	default:
		if code >= 500 {
			return string(KindInternal)
		}
		return "error"
	}
}
