package intent

import "JustNowBackend/pkg/response"

var (
	ErrMissingDeviceID      = response.NewError(400, "X-Device-Id header is required")
	ErrMissingIdempotency   = response.NewError(400, "X-Idempotency-Key header is required")
	ErrInvalidIdempotency   = response.NewError(400, "X-Idempotency-Key header is invalid")
	ErrIntentNotRecognized  = response.NewError(422, "intent not recognized")
	ErrMissingRequiredSlots = response.NewError(422, "intent is missing required slots")
	ErrUnknownScenario      = response.NewError(400, "unknown mock scenario")
	ErrAttemptNotFound      = response.NewError(404, "attempt not found")
	ErrGenerationFailed     = response.NewError(502, "failed to generate ui payload")
)
