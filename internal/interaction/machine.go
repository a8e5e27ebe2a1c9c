package interaction

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	intentService "JustNowBackend/internal/api/intent/service"
	"JustNowBackend/pkg/log"
	"JustNowBackend/pkg/retrypolicy"
	"JustNowBackend/pkg/utils"
)

type State string

const (
	StateIdle        State = "IDLE"
	StateListening   State = "LISTENING"
	StateThinking    State = "THINKING"
	StateRendering   State = "RENDERING"
	StateInteractive State = "INTERACTIVE"
	StateError       State = "ERROR"
)

const (
	// MinCaptureDuration is the shortest press-and-hold that counts as a
	// capture. Exactly one second counts; anything shorter is discarded.
	MinCaptureDuration = 1 * time.Second

	// ErrorResetDelay is how long the error screen stays up before the
	// device returns to idle on its own.
	ErrorResetDelay = 10 * time.Second
)

// Snapshot is the externally visible machine state, pushed to the device
// after every transition.
type Snapshot struct {
	State      State                      `json:"state"`
	AttemptKey string                     `json:"attempt_key,omitempty"`
	Reason     string                     `json:"reason,omitempty"`
	Error      *retrypolicy.ErrorEnvelope `json:"error,omitempty"`
	FallbackUI string                     `json:"fallback_ui,omitempty"`
}

// Timer abstracts the error auto-reset timer so tests can fire it by hand.
type Timer interface {
	Stop() bool
}

type TimerFactory func(d time.Duration, fn func()) Timer

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

// Machine serializes one device's interaction lifecycle. All transitions run
// under a single mutex, so a late model response and a user cancel can never
// interleave.
type Machine struct {
	mu sync.Mutex

	deviceID     string
	state        State
	attemptKey   string
	lastText     string
	captureStart time.Time
	canceled     bool
	resetTimer   Timer

	log      *logrus.Logger
	utils    utils.IUtils
	clock    func() time.Time
	newTimer TimerFactory
	onChange func(Snapshot)
}

type MachineOption func(*Machine)

func WithClock(clock func() time.Time) MachineOption {
	return func(m *Machine) { m.clock = clock }
}

func WithTimerFactory(factory TimerFactory) MachineOption {
	return func(m *Machine) { m.newTimer = factory }
}

// WithChangeListener registers a callback invoked (outside the lock) after
// every committed transition.
func WithChangeListener(fn func(Snapshot)) MachineOption {
	return func(m *Machine) { m.onChange = fn }
}

func NewMachine(logger *logrus.Logger, utilsInstance utils.IUtils, deviceID string, opts ...MachineOption) *Machine {
	m := &Machine{
		deviceID: deviceID,
		state:    StateIdle,
		log:      logger,
		utils:    utilsInstance,
		clock:    time.Now,
		newTimer: func(d time.Duration, fn func()) Timer {
			return realTimer{t: time.AfterFunc(d, fn)}
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, AttemptKey: m.attemptKey}
}

// StartCapture begins a listening session. Each capture gets a fresh attempt
// key; a re-press while already listening restarts the capture window.
func (m *Machine) StartCapture() Snapshot {
	m.mu.Lock()

	m.stopResetTimerLocked()
	m.state = StateListening
	m.attemptKey = m.mintAttemptKeyLocked()
	m.captureStart = m.clock()
	m.canceled = false

	snap := Snapshot{State: m.state, AttemptKey: m.attemptKey}
	m.mu.Unlock()

	m.notify(snap)
	return snap
}

// StopCapture ends the listening session. Captures shorter than the minimum
// are discarded and the machine returns to idle; the attempt key minted at
// StartCapture is never sent anywhere in that case.
func (m *Machine) StopCapture(text string) (Snapshot, bool) {
	m.mu.Lock()

	if m.state != StateListening {
		snap := Snapshot{State: m.state, AttemptKey: m.attemptKey}
		m.mu.Unlock()
		return snap, false
	}

	held := m.clock().Sub(m.captureStart)
	if held < MinCaptureDuration {
		m.state = StateIdle
		m.attemptKey = ""
		snap := Snapshot{State: m.state, Reason: "capture too short"}
		m.mu.Unlock()

		m.log.WithFields(log.Fields{
			"device_id": m.deviceID,
			"held_ms":   held.Milliseconds(),
		}).Debug("Capture discarded below minimum duration")
		m.notify(snap)
		return snap, false
	}

	m.state = StateThinking
	m.lastText = text
	snap := Snapshot{State: m.state, AttemptKey: m.attemptKey}
	m.mu.Unlock()

	m.notify(snap)
	return snap, true
}

// ApplyOutcome delivers a processing result. Results for a superseded or
// canceled attempt key are dropped so a slow response can never repaint the
// screen after the user moved on.
func (m *Machine) ApplyOutcome(attemptKey string, outcome *intentService.Outcome) Snapshot {
	m.mu.Lock()

	if attemptKey != m.attemptKey || m.canceled || m.state != StateThinking {
		snap := Snapshot{State: m.state, AttemptKey: m.attemptKey}
		m.mu.Unlock()

		m.log.WithFields(log.Fields{
			"device_id":   m.deviceID,
			"attempt_key": attemptKey,
		}).Debug("Dropping stale processing outcome")
		return snap
	}

	var snap Snapshot
	if outcome.Envelope != nil {
		m.state = StateError
		m.armResetTimerLocked()
		snap = Snapshot{
			State:      m.state,
			AttemptKey: m.attemptKey,
			Error:      outcome.Envelope,
			FallbackUI: intentService.FallbackBody(m.lastText),
		}
	} else {
		m.state = StateRendering
		snap = Snapshot{State: m.state, AttemptKey: m.attemptKey}
	}
	m.mu.Unlock()

	m.notify(snap)
	return snap
}

// RenderComplete is the device's acknowledgement that the widget tree is on
// screen.
func (m *Machine) RenderComplete() Snapshot {
	m.mu.Lock()

	if m.state == StateRendering {
		m.state = StateInteractive
	}
	snap := Snapshot{State: m.state, AttemptKey: m.attemptKey}
	m.mu.Unlock()

	m.notify(snap)
	return snap
}

// Cancel aborts whatever is in flight and returns to idle immediately. The
// attempt key that was active is returned so the caller can mark the attempt
// canceled; work already started stays billable.
func (m *Machine) Cancel() (Snapshot, string) {
	m.mu.Lock()

	inFlight := ""
	if m.state == StateThinking {
		inFlight = m.attemptKey
	}

	m.stopResetTimerLocked()
	m.state = StateIdle
	m.canceled = true
	m.attemptKey = ""

	snap := Snapshot{State: m.state, Reason: "canceled"}
	m.mu.Unlock()

	m.notify(snap)
	return snap, inFlight
}

// WidgetAction starts a follow-up request from an on-screen widget. It is
// scoped: the screen goes back to thinking under a new attempt key, and the
// result flows through ApplyOutcome like any other.
func (m *Machine) WidgetAction(widgetID string) (Snapshot, string, bool) {
	m.mu.Lock()

	if m.state != StateInteractive {
		snap := Snapshot{State: m.state, AttemptKey: m.attemptKey}
		m.mu.Unlock()
		return snap, "", false
	}

	m.state = StateThinking
	m.attemptKey = m.mintAttemptKeyLocked()
	m.canceled = false
	m.lastText = widgetID

	snap := Snapshot{State: m.state, AttemptKey: m.attemptKey}
	m.mu.Unlock()

	m.notify(snap)
	return snap, snap.AttemptKey, true
}

func (m *Machine) mintAttemptKeyLocked() string {
	key, err := m.utils.NewULIDFromTimestamp(m.clock())
	if err != nil {
		m.log.WithFields(log.Fields{
			"device_id": m.deviceID,
			"error":     err.Error(),
		}).Error("Failed to mint attempt key, falling back to UUID")
		return uuid.NewString()
	}
	return key
}

func (m *Machine) armResetTimerLocked() {
	m.stopResetTimerLocked()
	key := m.attemptKey
	m.resetTimer = m.newTimer(ErrorResetDelay, func() {
		m.resetFromError(key)
	})
}

func (m *Machine) resetFromError(attemptKey string) {
	m.mu.Lock()

	if m.state != StateError || m.attemptKey != attemptKey {
		m.mu.Unlock()
		return
	}

	m.state = StateIdle
	m.attemptKey = ""
	snap := Snapshot{State: m.state, Reason: "error timeout"}
	m.mu.Unlock()

	m.notify(snap)
}

func (m *Machine) stopResetTimerLocked() {
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
}

func (m *Machine) notify(snap Snapshot) {
	if m.onChange != nil {
		m.onChange(snap)
	}
}
