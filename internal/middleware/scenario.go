package middleware

import (
	"os"

	"github.com/gofiber/fiber/v2"
)

const ScenarioHeaderKey = "X-Mock-Scenario"

// NewScenarioGuardMiddleware strips the scenario-override header in
// production. Outside production the header selects a canned response from
// the mock catalog, which is how end-to-end tests avoid a live model.
func NewScenarioGuardMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if os.Getenv("APP_ENV") == "production" {
			c.Request().Header.Del(ScenarioHeaderKey)
		}
		return c.Next()
	}
}
