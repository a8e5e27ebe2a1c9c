package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioEchoApp() *fiber.App {
	app := fiber.New()
	app.Use(NewScenarioGuardMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Get(ScenarioHeaderKey))
	})
	return app
}

func TestScenarioGuard_HeaderPassesThroughOutsideProduction(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	app := scenarioEchoApp()

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(ScenarioHeaderKey, "taxi")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := make([]byte, 16)
	n, _ := resp.Body.Read(body)
	assert.Equal(t, "taxi", string(body[:n]))
}

func TestScenarioGuard_HeaderStrippedInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	app := scenarioEchoApp()

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(ScenarioHeaderKey, "taxi")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := make([]byte, 16)
	n, _ := resp.Body.Read(body)
	assert.Empty(t, string(body[:n]))
}

func TestRequestIDMiddleware_AssignsAndEchoesID(t *testing.T) {
	app := fiber.New()
	app.Use(NewRequestIDMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		id, _ := c.Locals(RequestIDKey).(string)
		return c.SendString(id)
	})

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := make([]byte, 64)
	n, _ := resp.Body.Read(body)
	assert.NotEmpty(t, string(body[:n]))
	assert.Equal(t, string(body[:n]), resp.Header.Get(RequestIDKey))
}
