package handlerUtil

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"JustNowBackend/internal/api/intent"
	"JustNowBackend/pkg/log"
	"JustNowBackend/pkg/response"
	"JustNowBackend/pkg/retrypolicy"
)

type ErrorHandler struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// Handle maps a domain error to the wire error envelope. Every error body
// leaving the API carries the same five fields so the device renderer never
// has to special-case a route.
func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, path string, operation string) error {
	if errors.Is(err, intent.ErrMissingDeviceID) {
		h.logger.WithFields(log.Fields{
			"request_id": requestID,
			"path":       path,
			"operation":  operation,
		}).Warn("Request missing device identifier")
		return h.envelope(c, requestID, fiber.StatusBadRequest,
			"MALFORMED_REQUEST", err.Error(), retrypolicy.ActionToast,
			"Something went wrong with this request.")
	}

	if errors.Is(err, intent.ErrMissingIdempotency) || errors.Is(err, intent.ErrInvalidIdempotency) {
		h.logger.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
			"path":       path,
			"operation":  operation,
		}).Warn("Request carried a missing or invalid idempotency key")
		return h.envelope(c, requestID, fiber.StatusBadRequest,
			"MALFORMED_REQUEST", err.Error(), retrypolicy.ActionToast,
			"Something went wrong with this request.")
	}

	if errors.Is(err, intent.ErrUnknownScenario) {
		h.logger.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
			"path":       path,
			"operation":  operation,
		}).Warn("Unknown mock scenario requested")
		return h.envelope(c, requestID, fiber.StatusBadRequest,
			"MALFORMED_REQUEST", err.Error(), retrypolicy.ActionToast,
			"Something went wrong with this request.")
	}

	if errors.Is(err, intent.ErrAttemptNotFound) {
		h.logger.WithFields(log.Fields{
			"request_id": requestID,
			"path":       path,
			"operation":  operation,
		}).Warn("Attempt not found")
		return h.envelope(c, requestID, fiber.StatusNotFound,
			"ATTEMPT_NOT_FOUND", err.Error(), retrypolicy.ActionNone, "")
	}

	var respErr *response.Error
	if errors.As(err, &respErr) {
		status := response.CodeOf(err, fiber.StatusBadRequest)
		h.logger.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
			"code":       status,
			"path":       path,
			"operation":  operation,
		}).Warn("Operation failed with error response")
		return h.envelope(c, requestID, status,
			"REQUEST_FAILED", err.Error(), retrypolicy.ActionNone, "")
	}

	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
		"operation":  operation,
	}).Error("Unhandled error in request processing")
	return h.envelope(c, requestID, fiber.StatusBadGateway,
		"DOWNSTREAM_UNAVAILABLE", "internal processing failure", retrypolicy.ActionRetry,
		"Please try again in a moment.")
}

func (h *ErrorHandler) HandleValidationError(c *fiber.Ctx, requestID string, err error, path string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
	}).Warn("Validation failed")

	return h.envelope(c, requestID, fiber.StatusBadRequest,
		"MALFORMED_REQUEST", "validation failed: "+err.Error(), retrypolicy.ActionToast,
		"Something went wrong with this request.")
}

func (h *ErrorHandler) HandleRequestTimeout(c *fiber.Ctx, requestID string) error {
	return h.envelope(c, requestID, fiber.StatusGatewayTimeout,
		"GENERATION_TIMEOUT", "request timed out", retrypolicy.ActionRetry,
		"This is taking longer than expected. Please try again.")
}

func (h *ErrorHandler) HandleUnauthorized(c *fiber.Ctx, requestID string, message string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"path":       c.Path(),
		"message":    message,
	}).Warn("Unauthorized access")

	return h.envelope(c, requestID, fiber.StatusUnauthorized,
		"AUTH_FAILURE", message, retrypolicy.ActionRebind,
		"Please re-pair your device.")
}

func (h *ErrorHandler) HandleSuccess(c *fiber.Ctx, statusCode int, data interface{}) error {
	if data == nil {
		return c.SendStatus(statusCode)
	}
	return c.Status(statusCode).JSON(data)
}

func (h *ErrorHandler) envelope(c *fiber.Ctx, traceID string, status int, code, message string, action retrypolicy.EnvelopeAction, tip string) error {
	return c.Status(status).JSON(retrypolicy.ErrorEnvelope{
		ErrorCode: code,
		Message:   message,
		TraceID:   traceID,
		Action:    action,
		UserTip:   tip,
	})
}
