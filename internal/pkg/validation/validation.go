// Package validation decodes request bodies and checks them against
// go-playground/validator struct tags.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		// Report fields by their JSON names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Struct validates v and converts failures to a BadRequest with one entry per
// field.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.BadRequest("请求参数无效").Wrap(err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	return apperror.BadRequest("请求参数无效").WithFields(fields)
}

// BindAndValidate parses the request body into dst and validates it.
func BindAndValidate(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperror.BadRequest("请求体格式错误").Wrap(err)
	}
	return Struct(dst)
}
