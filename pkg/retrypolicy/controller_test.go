package retrypolicy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"

	"JustNowBackend/pkg/log"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestController(t *testing.T, clock *fakeClock, slept *[]time.Duration) IController {
	t.Helper()
	return NewController(log.NewLogger(),
		WithClock(clock.Now),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			clock.Advance(d)
			return nil
		}),
	)
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var slept []time.Duration
	c := newTestController(t, clock, &slept)

	calls := 0
	err := c.Execute(context.Background(), true, func(_ context.Context, _ Attempt) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestExecuteUnavailableBackoffSchedule(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var slept []time.Duration
	c := newTestController(t, clock, &slept)

	downstream := NewError(KindDownstreamUnavailable, errors.New("connection refused"))
	calls := 0
	err := c.Execute(context.Background(), true, func(_ context.Context, _ Attempt) error {
		calls++
		return downstream
	})

	require.Error(t, err)
	// 1 initial attempt + retries until the budget runs out. The schedule is
	// 0.2s, 0.5s, 1.0s; the third retry would land at 1.7s elapsed, inside
	// the 2.0s budget, so all three run.
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 500 * time.Millisecond, time.Second}, slept)
}

func TestExecuteBudgetIsTheHardStop(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var slept []time.Duration
	c := newTestController(t, clock, &slept)

	downstream := NewError(KindDownstreamUnavailable, errors.New("timeout"))
	calls := 0
	err := c.Execute(context.Background(), true, func(_ context.Context, _ Attempt) error {
		calls++
		// Each attempt burns 900ms of wall clock.
		clock.Advance(900 * time.Millisecond)
		return downstream
	})

	require.Error(t, err)
	// Attempts start at 0ms and 1100ms; after the second attempt the full
	// 2.0s budget is spent, so the third retry is never started even though
	// the counter would allow it.
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, slept)
}

func TestExecuteRateLimitedSwitchesProviderOnce(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var slept []time.Duration
	c := newTestController(t, clock, &slept)

	var attempts []Attempt
	err := c.Execute(context.Background(), true, func(_ context.Context, a Attempt) error {
		attempts = append(attempts, a)
		if a.Number == 1 {
			return NewError(KindRateLimited, errors.New("429 from provider"))
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.False(t, attempts[0].UseFallbackProvider)
	assert.True(t, attempts[1].UseFallbackProvider)
	assert.Empty(t, slept, "rate limit switch has no backoff")
}

func TestExecuteSchemaViolationForcesDeterministicRegeneration(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var slept []time.Duration
	c := newTestController(t, clock, &slept)

	var attempts []Attempt
	schemaErr := NewError(KindSchemaViolation, errors.New("duplicate widget_id"))
	err := c.Execute(context.Background(), true, func(_ context.Context, a Attempt) error {
		attempts = append(attempts, a)
		return schemaErr
	})

	require.Error(t, err)
	require.Len(t, attempts, 2, "exactly one regeneration")
	assert.True(t, attempts[1].Deterministic)
	assert.Equal(t, KindSchemaViolation, KindOf(err))
}

func TestExecuteForbiddenKindsNeverRetry(t *testing.T) {
	for _, kind := range []Kind{KindSemanticMismatch, KindMalformedRequest, KindAuthFailure} {
		clock := &fakeClock{now: time.Unix(0, 0)}
		var slept []time.Duration
		c := newTestController(t, clock, &slept)

		calls := 0
		err := c.Execute(context.Background(), true, func(_ context.Context, _ Attempt) error {
			calls++
			return NewError(kind, errors.New("terminal"))
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls, "kind %s must not retry", kind)
	}
}

func TestExecuteRefusesRetryWithoutIdempotencyKey(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var slept []time.Duration
	c := newTestController(t, clock, &slept)

	calls := 0
	err := c.Execute(context.Background(), false, func(_ context.Context, _ Attempt) error {
		calls++
		return NewError(KindDownstreamUnavailable, errors.New("boom"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestKindOfDefaultsToUnavailable(t *testing.T) {
	assert.Equal(t, KindDownstreamUnavailable, KindOf(errors.New("mystery")))
}

func TestEnvelopeStatusesStayInAllowedSet(t *testing.T) {
	allowed := map[int]bool{400: true, 401: true, 409: true, 422: true, 429: true, 502: true, 503: true, 504: true}

	for kind := range policies {
		envelope := EnvelopeFor(NewError(kind, errors.New("x")), "trace-1")
		assert.True(t, allowed[envelope.Status], "kind %s maps to %d", kind, envelope.Status)
		assert.NotEmpty(t, envelope.ErrorCode)
		assert.NotEmpty(t, envelope.UserTip)
		assert.Equal(t, "trace-1", envelope.TraceID)
	}

	conflict := ConflictEnvelope("trace-2")
	assert.True(t, allowed[conflict.Status])
}
