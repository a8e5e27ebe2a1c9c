package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	jwtPkg "JustNowBackend/pkg/jwt"
	"JustNowBackend/pkg/retrypolicy"
)

// NewDeviceTokenMiddleware verifies the device-binding token and checks it
// against the X-Device-Id header. Any failure is an auth_failure: the client
// gets a REBIND envelope and must run the binding flow again.
func (m *middleware) NewDeviceTokenMiddleware(ctx *fiber.Ctx) error {
	requestID := m.GetRequestID(ctx)

	token, err := jwtPkg.VerifyTokenHeader(ctx)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"error":      err.Error(),
		}).Warn("Device token verification failed")
		return m.rejectRebind(ctx, requestID)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return m.rejectRebind(ctx, requestID)
	}

	deviceID, _ := claims["device_id"].(string)
	if deviceID == "" {
		return m.rejectRebind(ctx, requestID)
	}

	if header := ctx.Get("X-Device-Id"); header != "" && header != deviceID {
		m.log.WithFields(logrus.Fields{
			"request_id":    requestID,
			"token_device":  deviceID,
			"header_device": header,
		}).Warn("Device header does not match token binding")
		return m.rejectRebind(ctx, requestID)
	}

	ctx.Locals("device_id", deviceID)
	return ctx.Next()
}

func (m *middleware) rejectRebind(ctx *fiber.Ctx, requestID string) error {
	envelope := retrypolicy.ErrorEnvelope{
		ErrorCode: "AUTH_FAILURE",
		Message:   "device token invalid or expired",
		TraceID:   requestID,
		Action:    retrypolicy.ActionRebind,
		UserTip:   "Your device binding has expired. Please sign in again.",
	}
	return ctx.Status(fiber.StatusUnauthorized).JSON(envelope)
}
