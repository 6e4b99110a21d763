package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProtectedApp() *fiber.App {
	app := fiber.New()
	app.Get("/protected", RequireAPIKey(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestRequireAPIKeySkippedWhenUnset(t *testing.T) {
	t.Setenv("GATEWAY_API_KEY", "")

	resp, err := newProtectedApp().Test(httptest.NewRequest("GET", "/protected", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRequireAPIKeyMissingHeader(t *testing.T) {
	t.Setenv("GATEWAY_API_KEY", "secret")

	resp, err := newProtectedApp().Test(httptest.NewRequest("GET", "/protected", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestRequireAPIKeyWrongKey(t *testing.T) {
	t.Setenv("GATEWAY_API_KEY", "secret")

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-API-Key", "guess")
	resp, err := newProtectedApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestRequireAPIKeyValid(t *testing.T) {
	t.Setenv("GATEWAY_API_KEY", "secret")

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err := newProtectedApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
