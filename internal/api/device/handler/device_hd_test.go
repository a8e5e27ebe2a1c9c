package deviceHandler_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deviceHandler "JustNowBackend/internal/api/device/handler"
	"JustNowBackend/internal/config"
	"JustNowBackend/internal/middleware"
)

func newBindApp(t *testing.T) *fiber.App {
	t.Helper()
	t.Setenv("JWT_DEVICE_TOKEN_SECRET", "test-secret")

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	mw := middleware.New(logger)
	handler := deviceHandler.New(logger, config.NewValidator(), mw)

	app := fiber.New()
	handler.Start(app.Group("/api/v1"))
	app.Get("/api/v1/whoami", mw.NewDeviceTokenMiddleware, func(c *fiber.Ctx) error {
		deviceID, _ := c.Locals("device_id").(string)
		return c.SendString(deviceID)
	})
	return app
}

func TestBindDevice_MintedTokenPassesDeviceMiddleware(t *testing.T) {
	app := newBindApp(t)

	req := httptest.NewRequest("POST", "/api/v1/device/bind",
		strings.NewReader(`{"device_id":"device-abc-123"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var bound struct {
		DeviceID    string `json:"device_id"`
		DeviceToken string `json:"device_token"`
		ExpiresAt   int64  `json:"expires_at"`
	}
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, jsoniter.Unmarshal(body, &bound))
	assert.Equal(t, "device-abc-123", bound.DeviceID)
	assert.NotEmpty(t, bound.DeviceToken)
	assert.Greater(t, bound.ExpiresAt, time.Now().Unix())

	whoami := httptest.NewRequest("GET", "/api/v1/whoami", nil)
	whoami.Header.Set("Authorization", "Bearer "+bound.DeviceToken)

	resp2, err := app.Test(whoami)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, fiber.StatusOK, resp2.StatusCode)

	who, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	assert.Equal(t, "device-abc-123", string(who))
}

func TestBindDevice_RejectsInvalidCharacters(t *testing.T) {
	app := newBindApp(t)

	req := httptest.NewRequest("POST", "/api/v1/device/bind",
		strings.NewReader(`{"device_id":"not a valid id!!"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "invalid characters")
}

func TestBindDevice_MissingTokenGetsRebindEnvelope(t *testing.T) {
	app := newBindApp(t)

	req := httptest.NewRequest("GET", "/api/v1/whoami", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"action":"REBIND"`)
}
