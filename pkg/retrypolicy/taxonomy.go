package retrypolicy

import (
	"errors"
	"time"
)

// Kind is the closed failure taxonomy. Every error crossing the controller
// maps to exactly one kind; ambiguous classification here is a bug, not a
// runtime choice.
type Kind string

const (
	KindDownstreamUnavailable Kind = "downstream_unavailable"
	KindRateLimited           Kind = "rate_limited"
	KindSchemaViolation       Kind = "schema_violation"
	KindSemanticMismatch      Kind = "semantic_mismatch"
	KindMalformedRequest      Kind = "malformed_request"
	KindAuthFailure           Kind = "auth_failure"
)

type Policy struct {
	Retryable bool
	// MaxRetries counts retries after the first attempt.
	MaxRetries int
	Backoff    []time.Duration
	// SwitchProvider forces the retry onto the fallback model provider.
	SwitchProvider bool
	// Deterministic forces the retry to regenerate at temperature zero.
	Deterministic bool
	// RequiresIdempotencyKey: retrying without one would risk duplicate
	// side effects, so the controller refuses.
	RequiresIdempotencyKey bool
}

var policies = map[Kind]Policy{
	KindDownstreamUnavailable: {
		Retryable:              true,
		MaxRetries:             3,
		Backoff:                []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, time.Second},
		RequiresIdempotencyKey: true,
	},
	KindRateLimited: {
		Retryable:              true,
		MaxRetries:             1,
		SwitchProvider:         true,
		RequiresIdempotencyKey: true,
	},
	KindSchemaViolation: {
		Retryable:              true,
		MaxRetries:             1,
		Deterministic:          true,
		RequiresIdempotencyKey: true,
	},
	KindSemanticMismatch: {Retryable: false},
	KindMalformedRequest: {Retryable: false},
	KindAuthFailure:      {Retryable: false},
}

func PolicyFor(kind Kind) Policy {
	return policies[kind]
}

// ClassifiedError tags an underlying error with its taxonomy kind.
type ClassifiedError struct {
	Kind Kind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, err error) error {
	return &ClassifiedError{Kind: kind, Err: err}
}

// KindOf resolves the taxonomy kind of err. Unclassified errors from the
// generation path are treated as downstream unavailability: the provider
// misbehaved in a way we could not name, and a bounded retry is the safest
// recovery.
func KindOf(err error) Kind {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindDownstreamUnavailable
}
