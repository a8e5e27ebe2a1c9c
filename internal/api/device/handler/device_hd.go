package deviceHandler

import (
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"JustNowBackend/internal/api/device"
	"JustNowBackend/pkg/handlerUtil"
	jwtPkg "JustNowBackend/pkg/jwt"
	"JustNowBackend/pkg/log"
	"JustNowBackend/pkg/response"
)

const defaultTokenTTL = 720 * time.Hour

var deviceIDRe = regexp.MustCompile(`^[a-zA-Z0-9\-_:.]+$`)

// BindDevice mints the device-binding token. This is the endpoint a REBIND
// error action points the client back to.
func (h *DeviceHandler) BindDevice(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	var req device.BindDeviceRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "parse_request_body")
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	if !deviceIDRe.MatchString(req.DeviceID) {
		return errHandler.Handle(ctx, requestID,
			response.NewErrorf(fiber.StatusBadRequest, "device_id %q contains invalid characters", req.DeviceID),
			ctx.Path(), "validate_device_id")
	}

	token, expiresAt, err := jwtPkg.Sign(map[string]interface{}{
		"device_id": req.DeviceID,
	}, tokenTTL())
	if err != nil {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to sign device token")
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "sign_device_token")
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"device_id":  req.DeviceID,
	}).Info("Device bound")

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, device.BindDeviceResponse{
		DeviceID:    req.DeviceID,
		DeviceToken: token,
		ExpiresAt:   expiresAt,
	})
}

func tokenTTL() time.Duration {
	if hours, err := strconv.Atoi(os.Getenv("DEVICE_TOKEN_TTL_HOURS")); err == nil && hours > 0 {
		return time.Duration(hours) * time.Hour
	}
	return defaultTokenTTL
}
