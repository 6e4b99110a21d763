package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuscrm/nimbus-backend/internal/services"
	"github.com/nimbuscrm/nimbus-backend/internal/storage"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	store := storage.NewMemoryStore()
	media, err := services.NewMediaStore(t.TempDir())
	require.NoError(t, err)
	registry := services.NewSessionRegistry(t.TempDir(), services.NewWebhookDispatcher(""), media, services.NewProfileCache())
	handler := NewNumberHandler(services.NewNumberService(registry, store))

	app := fiber.New()
	app.Post("/api/numbers", handler.Create)
	app.Get("/api/numbers", handler.List)
	app.Get("/api/numbers/:id/qr", handler.GetQR)
	app.Get("/api/numbers/:id/status", handler.GetStatus)
	app.Post("/api/numbers/:id/send", handler.SendText)
	app.Post("/api/numbers/:id/disconnect", handler.Disconnect)
	app.Delete("/api/numbers/:id", handler.Delete)
	return app
}

func TestCreateRejectsBadPayload(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/numbers", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestCreateRequiresNumberID(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/numbers", strings.NewReader(`{"tenantId":"t1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestQRUnknownNumber(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/numbers/ghost/qr", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestStatusUnknownNumber(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/numbers/ghost/status", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestSendRequiresFields(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/numbers/tr-01/send", strings.NewReader(`{"to":"5511999990000"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestSendUnknownNumber(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("POST", "/api/numbers/ghost/send", strings.NewReader(`{"to":"5511999990000","text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestDisconnectUnknownNumber(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/numbers/ghost/disconnect", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestDeleteUnknownNumberSucceeds(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/api/numbers/ghost", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestListEmpty(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/numbers", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
