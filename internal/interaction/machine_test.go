package interaction

import (
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intentService "JustNowBackend/internal/api/intent/service"
	"JustNowBackend/pkg/retrypolicy"
	"JustNowBackend/pkg/utils"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

func (t *fakeTimer) Fire() {
	if !t.stopped {
		t.fn()
	}
}

func newTestMachine(t *testing.T) (*Machine, *fakeClock, *[]*fakeTimer) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	timers := &[]*fakeTimer{}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	m := NewMachine(logger, utils.New(), "device-001",
		WithClock(clock.Now),
		WithTimerFactory(func(d time.Duration, fn func()) Timer {
			require.Equal(t, ErrorResetDelay, d)
			timer := &fakeTimer{fn: fn}
			*timers = append(*timers, timer)
			return timer
		}),
	)
	return m, clock, timers
}

func successOutcome() *intentService.Outcome {
	return &intentService.Outcome{Status: http.StatusOK, Body: []byte(`{}`)}
}

func errorOutcome() *intentService.Outcome {
	return &intentService.Outcome{
		Status: http.StatusBadGateway,
		Envelope: &retrypolicy.ErrorEnvelope{
			ErrorCode: "SCHEMA_VALIDATION_FAILED",
			Action:    retrypolicy.ActionRetry,
		},
	}
}

func TestMachine_CaptureBelowMinimumIsDiscarded(t *testing.T) {
	m, clock, _ := newTestMachine(t)

	snap := m.StartCapture()
	assert.Equal(t, StateListening, snap.State)
	assert.NotEmpty(t, snap.AttemptKey)

	clock.Advance(900 * time.Millisecond)
	snap, dispatch := m.StopCapture("taxi to the train station")

	assert.False(t, dispatch)
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.AttemptKey)
	assert.Equal(t, "capture too short", snap.Reason)
}

func TestMachine_CaptureAtExactlyOneSecondProceeds(t *testing.T) {
	m, clock, _ := newTestMachine(t)

	m.StartCapture()
	clock.Advance(1 * time.Second)
	snap, dispatch := m.StopCapture("taxi to the train station")

	assert.True(t, dispatch)
	assert.Equal(t, StateThinking, snap.State)
	assert.NotEmpty(t, snap.AttemptKey)
}

func TestMachine_EachCaptureMintsFreshAttemptKey(t *testing.T) {
	m, clock, _ := newTestMachine(t)

	first := m.StartCapture()
	clock.Advance(time.Second)
	second := m.StartCapture()

	assert.NotEqual(t, first.AttemptKey, second.AttemptKey)
}

func TestMachine_SuccessOutcomeRendersThenInteractive(t *testing.T) {
	m, clock, _ := newTestMachine(t)

	m.StartCapture()
	clock.Advance(2 * time.Second)
	snap, _ := m.StopCapture("taxi to the train station")

	snap = m.ApplyOutcome(snap.AttemptKey, successOutcome())
	assert.Equal(t, StateRendering, snap.State)

	snap = m.RenderComplete()
	assert.Equal(t, StateInteractive, snap.State)
}

func TestMachine_StaleOutcomeIsDropped(t *testing.T) {
	m, clock, _ := newTestMachine(t)

	m.StartCapture()
	clock.Advance(2 * time.Second)
	snap, _ := m.StopCapture("first request")
	staleKey := snap.AttemptKey

	// The user starts over before the first response lands.
	m.StartCapture()
	clock.Advance(2 * time.Second)
	current, _ := m.StopCapture("second request")

	snap = m.ApplyOutcome(staleKey, successOutcome())
	assert.Equal(t, StateThinking, snap.State)
	assert.Equal(t, current.AttemptKey, snap.AttemptKey)
}

func TestMachine_CancelReturnsToIdleAndDropsLateOutcome(t *testing.T) {
	m, clock, _ := newTestMachine(t)

	m.StartCapture()
	clock.Advance(2 * time.Second)
	thinking, _ := m.StopCapture("taxi to the train station")

	snap, inFlight := m.Cancel()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, thinking.AttemptKey, inFlight)

	// The response that was in flight when the user canceled never
	// repaints the screen.
	snap = m.ApplyOutcome(thinking.AttemptKey, successOutcome())
	assert.Equal(t, StateIdle, snap.State)
}

func TestMachine_CancelWhileIdleReportsNothingInFlight(t *testing.T) {
	m, _, _ := newTestMachine(t)

	snap, inFlight := m.Cancel()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, inFlight)
}

func TestMachine_ErrorOutcomeCarriesEnvelopeAndFallback(t *testing.T) {
	m, clock, timers := newTestMachine(t)

	m.StartCapture()
	clock.Advance(2 * time.Second)
	snap, _ := m.StopCapture("taxi to the train station")

	snap = m.ApplyOutcome(snap.AttemptKey, errorOutcome())
	assert.Equal(t, StateError, snap.State)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "SCHEMA_VALIDATION_FAILED", snap.Error.ErrorCode)
	assert.Contains(t, snap.FallbackUI, "taxi to the train station")
	require.Len(t, *timers, 1)
}

func TestMachine_ErrorAutoResetsAfterDelay(t *testing.T) {
	m, clock, timers := newTestMachine(t)

	m.StartCapture()
	clock.Advance(2 * time.Second)
	snap, _ := m.StopCapture("taxi to the train station")
	m.ApplyOutcome(snap.AttemptKey, errorOutcome())

	require.Len(t, *timers, 1)
	(*timers)[0].Fire()

	assert.Equal(t, StateIdle, m.Snapshot().State)
}

func TestMachine_NewCaptureDisarmsErrorResetTimer(t *testing.T) {
	m, clock, timers := newTestMachine(t)

	m.StartCapture()
	clock.Advance(2 * time.Second)
	snap, _ := m.StopCapture("taxi to the train station")
	m.ApplyOutcome(snap.AttemptKey, errorOutcome())

	m.StartCapture()
	require.Len(t, *timers, 1)
	assert.True(t, (*timers)[0].stopped)

	// Even if the old timer fired anyway, the new session is untouched.
	(*timers)[0].fn()
	assert.Equal(t, StateListening, m.Snapshot().State)
}

func TestMachine_WidgetActionScopedToInteractive(t *testing.T) {
	m, clock, _ := newTestMachine(t)

	_, _, ok := m.WidgetAction("ride_economy")
	assert.False(t, ok)

	m.StartCapture()
	clock.Advance(2 * time.Second)
	snap, _ := m.StopCapture("taxi to the train station")
	m.ApplyOutcome(snap.AttemptKey, successOutcome())
	m.RenderComplete()

	next, key, ok := m.WidgetAction("ride_economy")
	require.True(t, ok)
	assert.Equal(t, StateThinking, next.State)
	assert.NotEmpty(t, key)
	assert.NotEqual(t, snap.AttemptKey, key)

	done := m.ApplyOutcome(key, successOutcome())
	assert.Equal(t, StateRendering, done.State)
}

func TestMachine_StopCaptureOutsideListeningIsIgnored(t *testing.T) {
	m, _, _ := newTestMachine(t)

	snap, dispatch := m.StopCapture("anything")
	assert.False(t, dispatch)
	assert.Equal(t, StateIdle, snap.State)
}

func TestMachine_ChangeListenerObservesTransitions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	var states []State
	m := NewMachine(logger, utils.New(), "device-001",
		WithClock(clock.Now),
		WithChangeListener(func(snap Snapshot) {
			states = append(states, snap.State)
		}),
	)

	m.StartCapture()
	clock.Advance(time.Second)
	snap, _ := m.StopCapture("taxi to the train station")
	m.ApplyOutcome(snap.AttemptKey, successOutcome())
	m.RenderComplete()

	assert.Equal(t, []State{StateListening, StateThinking, StateRendering, StateInteractive}, states)
}
