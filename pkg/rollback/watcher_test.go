package rollback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"JustNowBackend/pkg/log"
)

func TestRollbackFiresOncePerBreach(t *testing.T) {
	now := time.Unix(1000, 0)
	fires := 0
	var from, to string

	w := New(log.NewLogger(), "prompt-v1",
		WithClock(func() time.Time { return now }),
		WithMinSamples(20),
		WithRollbackHook(func(f, to2 string) {
			fires++
			from, to = f, to2
		}),
	)
	w.Activate("prompt-v2")

	// 19 successes + 2 violations = 21 outcomes, ratio 2/21 ≈ 9.5%.
	for i := 0; i < 19; i++ {
		w.Record(OutcomeSuccess)
	}
	w.Record(OutcomeSchemaViolation)
	assert.Equal(t, 0, fires, "below min samples, must not fire")
	w.Record(OutcomeSchemaViolation)

	require.Equal(t, 1, fires)
	assert.Equal(t, "prompt-v2", from)
	assert.Equal(t, "prompt-v1", to)
	assert.Equal(t, "prompt-v1", w.ActiveVersion())

	// Window reset: the same evidence cannot fire twice.
	w.Record(OutcomeSchemaViolation)
	assert.Equal(t, 1, fires)
}

func TestRollbackRatioAtThresholdDoesNotFire(t *testing.T) {
	now := time.Unix(1000, 0)
	fires := 0

	w := New(log.NewLogger(), "v1",
		WithClock(func() time.Time { return now }),
		WithMinSamples(20),
		WithRollbackHook(func(_, _ string) { fires++ }),
	)

	// 1 violation in 20 outcomes is exactly 5%: the ratio must *exceed* the
	// threshold to fire.
	w.Record(OutcomeSchemaViolation)
	for i := 0; i < 19; i++ {
		w.Record(OutcomeSuccess)
	}

	assert.Equal(t, 0, fires)
}

func TestRollbackWindowSlides(t *testing.T) {
	now := time.Unix(1000, 0)
	fires := 0

	w := New(log.NewLogger(), "v1",
		WithClock(func() time.Time { return now }),
		WithMinSamples(5),
		WithRollbackHook(func(_, _ string) { fires++ }),
	)

	// Old violations fall out of the one-minute window before enough total
	// volume arrives to evaluate.
	w.Record(OutcomeSchemaViolation)
	w.Record(OutcomeSchemaViolation)

	now = now.Add(2 * time.Minute)
	for i := 0; i < 10; i++ {
		w.Record(OutcomeSuccess)
	}

	assert.Equal(t, 0, fires)
}

func TestRollbackOtherFailuresCountTowardTotalOnly(t *testing.T) {
	now := time.Unix(1000, 0)
	fires := 0

	w := New(log.NewLogger(), "v1",
		WithClock(func() time.Time { return now }),
		WithMinSamples(10),
		WithRollbackHook(func(_, _ string) { fires++ }),
	)

	// Downstream failures are not schema violations; they dilute the ratio.
	w.Record(OutcomeSchemaViolation)
	for i := 0; i < 30; i++ {
		w.Record(OutcomeOtherFailure)
	}

	assert.Equal(t, 0, fires)
}

func TestRollbackConcurrentRecorders(t *testing.T) {
	now := time.Unix(1000, 0)
	var mu sync.Mutex
	fires := 0

	w := New(log.NewLogger(), "v1",
		WithClock(func() time.Time { return now }),
		WithMinSamples(10),
		WithRollbackHook(func(_, _ string) {
			mu.Lock()
			fires++
			mu.Unlock()
		}),
	)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Record(OutcomeSchemaViolation)
		}()
	}
	wg.Wait()

	// Every breach resets the window, so with pure violations the hook can
	// fire more than once, but never twice for the same evidence.
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, fires, 5)
	assert.GreaterOrEqual(t, fires, 1)
}

func TestRollbackStop(t *testing.T) {
	fires := 0
	w := New(log.NewLogger(), "v1",
		WithMinSamples(1),
		WithRollbackHook(func(_, _ string) { fires++ }),
	)

	w.Stop()
	w.Record(OutcomeSchemaViolation)
	assert.Equal(t, 0, fires)
}
