package retrypolicy

import "net/http"

type EnvelopeAction string

const (
	ActionRetry  EnvelopeAction = "RETRY"
	ActionRebind EnvelopeAction = "REBIND"
	ActionToast  EnvelopeAction = "TOAST"
	ActionNone   EnvelopeAction = "NONE"
)

// ErrorEnvelope is the only shape a terminal failure is allowed to take on
// the wire. Never partially filled.
type ErrorEnvelope struct {
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	TraceID   string         `json:"trace_id"`
	Action    EnvelopeAction `json:"action"`
	UserTip   string         `json:"user_tip"`

	Status int `json:"-"`
}

type envelopeTemplate struct {
	status  int
	code    string
	action  EnvelopeAction
	userTip string
}

var envelopeTemplates = map[Kind]envelopeTemplate{
	KindDownstreamUnavailable: {
		status:  http.StatusServiceUnavailable,
		code:    "DOWNSTREAM_UNAVAILABLE",
		action:  ActionRetry,
		userTip: "The service is temporarily unavailable. Please try again.",
	},
	KindRateLimited: {
		status:  http.StatusTooManyRequests,
		code:    "RATE_LIMITED",
		action:  ActionRetry,
		userTip: "Too many requests right now. Please wait a moment.",
	},
	KindSchemaViolation: {
		status:  http.StatusBadGateway,
		code:    "SCHEMA_VALIDATION_FAILED",
		action:  ActionRetry,
		userTip: "We could not build a screen for that. Please try again.",
	},
	KindSemanticMismatch: {
		status:  http.StatusUnprocessableEntity,
		code:    "SEMANTIC_MISMATCH",
		action:  ActionNone,
		userTip: "That request did not match anything we can do.",
	},
	KindMalformedRequest: {
		status:  http.StatusBadRequest,
		code:    "MALFORMED_REQUEST",
		action:  ActionToast,
		userTip: "The request was malformed. Please rephrase and try again.",
	},
	KindAuthFailure: {
		status:  http.StatusUnauthorized,
		code:    "AUTH_FAILURE",
		action:  ActionRebind,
		userTip: "Your device binding has expired. Please sign in again.",
	},
}

// EnvelopeFor builds the wire envelope for a terminal failure of err's kind.
func EnvelopeFor(err error, traceID string) *ErrorEnvelope {
	kind := KindOf(err)
	tmpl := envelopeTemplates[kind]

	return &ErrorEnvelope{
		ErrorCode: tmpl.code,
		Message:   err.Error(),
		TraceID:   traceID,
		Action:    tmpl.action,
		UserTip:   tmpl.userTip,
		Status:    tmpl.status,
	}
}

// ConflictEnvelope covers the idempotency fail-closed path: the attempt key
// is already being processed and the store could not hand back a result.
func ConflictEnvelope(traceID string) *ErrorEnvelope {
	return &ErrorEnvelope{
		ErrorCode: "DUPLICATE_IN_FLIGHT",
		Message:   "a request with this attempt key is already being processed",
		TraceID:   traceID,
		Action:    ActionRetry,
		UserTip:   "Your request is still being processed. Please wait.",
		Status:    http.StatusConflict,
	}
}
