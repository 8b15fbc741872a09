package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{BadRequest("x"), fiber.StatusBadRequest},
		{NotFound("x"), fiber.StatusNotFound},
		{Unauthorized("x"), fiber.StatusUnauthorized},
		{Forbidden("x"), fiber.StatusForbidden},
		{Conflict("x"), fiber.StatusConflict},
		{Internal("x", errors.New("boom")), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Status())
		})
	}
}

func TestAsThroughWrapping(t *testing.T) {
	base := NotFound("order not found")
	wrapped := fmt.Errorf("load: %w", base)

	ae, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, ae.Kind)
	assert.True(t, Is(wrapped, KindNotFound))
	assert.False(t, Is(wrapped, KindBadRequest))
	assert.False(t, Is(errors.New("plain"), KindNotFound))
}

func TestWrapKeepsOriginal(t *testing.T) {
	cause := errors.New("db down")
	base := BadRequest("nope")
	w := base.Wrap(cause)

	assert.Nil(t, base.Err)
	assert.ErrorIs(t, w, cause)
}

func TestFiberErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: FiberErrorHandler})
	app.Get("/typed", func(c *fiber.Ctx) error {
		return BadRequest("兑换码已被使用").WithFields(map[string]string{"code": "used"})
	})
	app.Get("/internal", func(c *fiber.Ctx) error {
		return Internal("failed", errors.New("secret detail"))
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	tests := []struct {
		path       string
		wantStatus int
		wantError  string
		wantMsg    string
	}{
		{"/typed", 400, "bad_request", "兑换码已被使用"},
		{"/internal", 500, "internal_server_error", "failed"},
		{"/plain", 500, "internal_server_error", "internal server error"},
		{"/missing", 404, "not_found", "Cannot GET /missing"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			raw, _ := io.ReadAll(resp.Body)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, tt.wantError, body["error"])
			assert.Equal(t, tt.wantMsg, body["message"])
			assert.NotContains(t, string(raw), "secret detail")
		})
	}
}
