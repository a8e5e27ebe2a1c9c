package retrypolicy

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"JustNowBackend/pkg/log"
)

// DefaultBudget is the cumulative wall-clock ceiling for one logical request
// across every attempt. The budget, not the attempt counter, is the hard stop.
const DefaultBudget = 2 * time.Second

// Attempt describes the execution hints for one try of the guarded operation.
type Attempt struct {
	// Number is 1-based.
	Number int
	// UseFallbackProvider is set after a rate-limited failure.
	UseFallbackProvider bool
	// Deterministic is set after a schema violation to force regeneration
	// at temperature zero.
	Deterministic bool
}

type AttemptFn func(ctx context.Context, attempt Attempt) error

type IController interface {
	Execute(ctx context.Context, hasIdempotencyKey bool, fn AttemptFn) error
}

type controller struct {
	budget time.Duration
	clock  func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *logrus.Logger
}

type Option func(*controller)

func WithBudget(budget time.Duration) Option {
	return func(c *controller) { c.budget = budget }
}

func WithClock(clock func() time.Time) Option {
	return func(c *controller) { c.clock = clock }
}

func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *controller) { c.sleep = sleep }
}

func NewController(logger *logrus.Logger, opts ...Option) IController {
	c := &controller{
		budget: DefaultBudget,
		clock:  time.Now,
		sleep:  sleepContext,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs fn under the layered retry policy: per-kind retry caps first,
// then the global budget as the hard stop. An attempt that cannot fit the
// remaining budget is never started; the last known error is returned as-is.
func (c *controller) Execute(ctx context.Context, hasIdempotencyKey bool, fn AttemptFn) error {
	start := c.clock()
	deadline := start.Add(c.budget)

	// Each attempt enforces the ceiling itself instead of trusting an outer
	// layer to cut it off.
	attemptCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	attempt := Attempt{Number: 1}
	retriesUsed := make(map[Kind]int)
	var lastErr error

	for {
		lastErr = fn(attemptCtx, attempt)
		if lastErr == nil {
			return nil
		}

		kind := KindOf(lastErr)
		policy := PolicyFor(kind)

		if !policy.Retryable {
			return lastErr
		}
		if policy.RequiresIdempotencyKey && !hasIdempotencyKey {
			c.logger.WithFields(log.Fields{
				"kind":    string(kind),
				"attempt": attempt.Number,
			}).Warn("Retryable failure but no idempotency key; refusing to retry")
			return lastErr
		}

		used := retriesUsed[kind]
		if used >= policy.MaxRetries {
			return lastErr
		}
		retriesUsed[kind] = used + 1

		var backoff time.Duration
		if used < len(policy.Backoff) {
			backoff = policy.Backoff[used]
		}

		remaining := deadline.Sub(c.clock())
		if remaining <= 0 || backoff >= remaining {
			c.logger.WithFields(log.Fields{
				"kind":         string(kind),
				"attempt":      attempt.Number,
				"remaining_ms": remaining.Milliseconds(),
			}).Warn("Retry budget exhausted; returning last error")
			return lastErr
		}

		if backoff > 0 {
			if err := c.sleep(attemptCtx, backoff); err != nil {
				return lastErr
			}
		}

		attempt.Number++
		if policy.SwitchProvider {
			attempt.UseFallbackProvider = true
		}
		if policy.Deterministic {
			attempt.Deterministic = true
		}

		c.logger.WithFields(log.Fields{
			"kind":       string(kind),
			"attempt":    attempt.Number,
			"backoff_ms": backoff.Milliseconds(),
			"fallback":   attempt.UseFallbackProvider,
		}).Debug("Retrying guarded operation")
	}
}
