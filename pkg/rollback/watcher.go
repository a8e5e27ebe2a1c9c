package rollback

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"JustNowBackend/pkg/log"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSchemaViolation
	OutcomeOtherFailure
)

const (
	// DefaultWindow is the sliding window over which the schema-violation
	// ratio is evaluated.
	DefaultWindow = time.Minute
	// DefaultThreshold is the violation ratio that trips a rollback.
	DefaultThreshold = 0.05
	// DefaultMinSamples keeps a single early failure from reading as 100%.
	DefaultMinSamples = 20
)

// IWatcher is the process-wide control loop that reverts the active
// generation config when validated-output quality degrades. One instance per
// process, injected where needed, stopped on shutdown.
type IWatcher interface {
	Record(outcome Outcome)
	ActiveVersion() string
	Activate(version string)
	MarkVerified(version string)
	Stop()
}

type observation struct {
	at        time.Time
	violation bool
}

type watcher struct {
	mu sync.Mutex

	window     time.Duration
	threshold  float64
	minSamples int
	clock      func() time.Time

	observations []observation

	activeVersion   string
	verifiedVersion string
	onRollback      func(from, to string)

	stopped bool
	logger  *logrus.Logger
}

type Option func(*watcher)

func WithWindow(window time.Duration) Option {
	return func(w *watcher) { w.window = window }
}

func WithThreshold(threshold float64) Option {
	return func(w *watcher) { w.threshold = threshold }
}

func WithMinSamples(n int) Option {
	return func(w *watcher) { w.minSamples = n }
}

func WithClock(clock func() time.Time) Option {
	return func(w *watcher) { w.clock = clock }
}

// WithRollbackHook registers a callback fired once per threshold breach.
func WithRollbackHook(hook func(from, to string)) Option {
	return func(w *watcher) { w.onRollback = hook }
}

func New(logger *logrus.Logger, initialVersion string, opts ...Option) IWatcher {
	w := &watcher{
		window:          DefaultWindow,
		threshold:       DefaultThreshold,
		minSamples:      DefaultMinSamples,
		clock:           time.Now,
		activeVersion:   initialVersion,
		verifiedVersion: initialVersion,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Record folds one request outcome into the window and evaluates the
// threshold under the same lock, so concurrent recorders cannot both trip
// the rollback for the same breach.
func (w *watcher) Record(outcome Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	now := w.clock()
	w.observations = append(w.observations, observation{
		at:        now,
		violation: outcome == OutcomeSchemaViolation,
	})
	w.prune(now)

	total := len(w.observations)
	if total < w.minSamples {
		return
	}

	violations := 0
	for _, obs := range w.observations {
		if obs.violation {
			violations++
		}
	}

	ratio := float64(violations) / float64(total)
	if ratio <= w.threshold {
		return
	}

	from := w.activeVersion
	to := w.verifiedVersion
	w.activeVersion = to
	// The window resets after a breach; the next breach needs fresh
	// evidence, so the signal fires exactly once per breach.
	w.observations = nil

	w.logger.WithFields(log.Fields{
		"violations":   violations,
		"total":        total,
		"ratio":        ratio,
		"from_version": from,
		"to_version":   to,
	}).Warn("Schema violation ratio breached threshold; rolling back generation config")

	if w.onRollback != nil {
		w.onRollback(from, to)
	}
}

func (w *watcher) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	kept := w.observations[:0]
	for _, obs := range w.observations {
		if obs.at.After(cutoff) {
			kept = append(kept, obs)
		}
	}
	w.observations = kept
}

func (w *watcher) ActiveVersion() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeVersion
}

// Activate switches the live config version. The new version is not trusted
// until MarkVerified; a rollback lands on the last verified one.
func (w *watcher) Activate(version string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.activeVersion = version
}

func (w *watcher) MarkVerified(version string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.verifiedVersion = version
}

func (w *watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.observations = nil
}
