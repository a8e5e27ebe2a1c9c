package intentService

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"JustNowBackend/internal/api/intent"
	"JustNowBackend/pkg/idempotency"
	"JustNowBackend/pkg/log"
	"JustNowBackend/pkg/retrypolicy"
)

func (s *intentService) envelopeOutcome(requestID string, err error) *Outcome {
	traceID := log.ErrorWithTraceID(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"kind":       string(retrypolicy.KindOf(err)),
	}, "Intent processing failed")

	envelope := retrypolicy.EnvelopeFor(err, traceID)
	return s.wrapEnvelope(envelope)
}

// rejectedOutcome terminates a below-threshold intent. Downstream is never
// called, so there is nothing to retry.
func (s *intentService) rejectedOutcome(requestID string) *Outcome {
	envelope := &retrypolicy.ErrorEnvelope{
		ErrorCode: "INTENT_NOT_RECOGNIZED",
		Message:   "intent not recognized",
		TraceID:   requestID,
		Action:    retrypolicy.ActionToast,
		UserTip:   "Sorry, I did not catch that. Please try again.",
		Status:    http.StatusUnprocessableEntity,
	}
	return s.wrapEnvelope(envelope)
}

func (s *intentService) missingSlotsOutcome(requestID string, missing []string) *Outcome {
	envelope := &retrypolicy.ErrorEnvelope{
		ErrorCode: "MISSING_REQUIRED_SLOTS",
		Message:   intent.ErrMissingRequiredSlots.Error(),
		TraceID:   requestID,
		Action:    retrypolicy.ActionToast,
		UserTip:   "Please say where you want to go.",
		Status:    http.StatusUnprocessableEntity,
	}

	s.log.WithFields(log.Fields{
		"request_id":    requestID,
		"missing_slots": missing,
	}).Warn("Intent downgraded to invalid: required slots missing")

	return s.wrapEnvelope(envelope)
}

func (s *intentService) failClosedOutcome(requestID string, err error) *Outcome {
	if errors.Is(err, idempotency.ErrInFlight) {
		return s.wrapEnvelope(retrypolicy.ConflictEnvelope(requestID))
	}

	envelope := &retrypolicy.ErrorEnvelope{
		ErrorCode: "IDEMPOTENCY_STORE_UNAVAILABLE",
		Message:   err.Error(),
		TraceID:   requestID,
		Action:    retrypolicy.ActionRetry,
		UserTip:   "We could not safely process your request. Please try again.",
		Status:    http.StatusServiceUnavailable,
	}
	return s.wrapEnvelope(envelope)
}

// confirmationOutcome asks the caller to confirm an ambiguous intent before
// any downstream call is made. The confirmed follow-up arrives as a fresh
// attempt with its own key.
func (s *intentService) confirmationOutcome(requestID string, req intent.ProcessIntentRequest) (*Outcome, error) {
	resp := &intent.ConfirmationResponse{
		ConfirmationRequired: true,
		IntentID:             uuid.NewString(),
		Category:             string(categoryGuess(req)),
		Prompt:               "Did you mean: " + req.TextInput + "?",
		Slots:                req.Slots,
	}

	body, err := s.json.Marshal(resp)
	if err != nil {
		return nil, err
	}

	return &Outcome{Status: http.StatusOK, Body: body}, nil
}

func (s *intentService) wrapEnvelope(envelope *retrypolicy.ErrorEnvelope) *Outcome {
	body, err := s.json.Marshal(envelope)
	if err != nil {
		body = []byte(`{"error_code":"INTERNAL","message":"encoding failure","trace_id":"unknown","action":"NONE","user_tip":""}`)
	}
	return &Outcome{
		Status:   envelope.Status,
		Body:     body,
		Envelope: envelope,
	}
}
