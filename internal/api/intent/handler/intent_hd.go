package intentHandler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"

	"JustNowBackend/internal/api/intent"
	contextPkg "JustNowBackend/pkg/context"
	"JustNowBackend/pkg/handlerUtil"
	jwtPkg "JustNowBackend/pkg/jwt"
	"JustNowBackend/pkg/log"
)

const IdempotencyHeaderKey = "X-Idempotency-Key"

func (h *IntentHandler) ProcessIntent(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing intent request")

	deviceData, err := jwtPkg.GetDeviceData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized")
	}

	attemptKey := ctx.Get(IdempotencyHeaderKey)
	if attemptKey == "" {
		return errHandler.Handle(ctx, requestID, intent.ErrMissingIdempotency, ctx.Path(), "read_idempotency_key")
	}

	var req intent.ProcessIntentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "parse_request_body")
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	scenario := ctx.Get("X-Mock-Scenario")

	outcome, err := h.intentService.ProcessIntent(c, deviceData.DeviceID, attemptKey, scenario, req)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "process_intent")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx, requestID)
	default:
		ctx.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return ctx.Status(outcome.Status).Send(outcome.Body)
	}
}

func (h *IntentHandler) CancelAttempt(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	deviceData, err := jwtPkg.GetDeviceData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized")
	}

	attemptKey := ctx.Get(IdempotencyHeaderKey)
	if attemptKey == "" {
		return errHandler.Handle(ctx, requestID, intent.ErrMissingIdempotency, ctx.Path(), "read_idempotency_key")
	}

	if err := h.intentService.CancelAttempt(c, deviceData.DeviceID, attemptKey); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "cancel_attempt")
	}

	h.log.WithFields(log.Fields{
		"request_id":  requestID,
		"device_id":   deviceData.DeviceID,
		"attempt_key": attemptKey,
	}).Info("Attempt canceled; any work already started remains billable")

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx, requestID)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, fiber.Map{
			"message": "Attempt canceled",
		})
	}
}

func (h *IntentHandler) GetHistory(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	deviceData, err := jwtPkg.GetDeviceData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized")
	}

	page := ctx.QueryInt("page", 1)
	limit := ctx.QueryInt("limit", 20)

	history, err := h.intentService.GetHistory(c, deviceData.DeviceID, page, limit)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_history")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx, requestID)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, history)
	}
}
