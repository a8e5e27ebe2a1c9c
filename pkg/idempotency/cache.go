package idempotency

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"JustNowBackend/pkg/log"
	redisPkg "JustNowBackend/pkg/redis"
)

const (
	// TTL counts from commit time, per the retry contract: a client may
	// safely replay an attempt key for ten minutes and observe the original
	// outcome.
	TTL = 10 * time.Minute

	// pendingTTL bounds how long a reservation without a commit can wedge
	// the key when its owner dies mid-request.
	pendingTTL = 30 * time.Second

	pendingMarker = "__pending__"
)

var (
	// ErrInFlight means another request holds the reservation and did not
	// commit within the wait window. Failing closed beats duplicate
	// execution.
	ErrInFlight = errors.New("idempotency: request with this key is in flight")
	// ErrStoreUnavailable means the cache could not answer. Also fails
	// closed: without the store we cannot prove at-most-once execution.
	ErrStoreUnavailable = errors.New("idempotency: store unavailable")
)

// Result of GetOrReserve: either a cache hit carrying the terminal response
// verbatim, or a miss meaning the caller now owns the key and MUST Commit
// (or Release) before letting go of the session.
type Result struct {
	Hit      bool
	Response string
}

type ICache interface {
	GetOrReserve(ctx context.Context, deviceID, attemptKey string) (Result, error)
	Commit(ctx context.Context, deviceID, attemptKey, response string) error
	Release(ctx context.Context, deviceID, attemptKey string) error
}

type cache struct {
	redis        redisPkg.IRedis
	logger       *logrus.Logger
	pollInterval time.Duration
	waitTimeout  time.Duration
}

type Option func(*cache)

func WithPollInterval(d time.Duration) Option {
	return func(c *cache) { c.pollInterval = d }
}

func WithWaitTimeout(d time.Duration) Option {
	return func(c *cache) { c.waitTimeout = d }
}

func New(redisServer redisPkg.IRedis, logger *logrus.Logger, opts ...Option) ICache {
	c := &cache{
		redis:        redisServer,
		logger:       logger,
		pollInterval: 50 * time.Millisecond,
		// Slightly above the global retry budget, so a duplicate arriving
		// mid-processing usually collects the owner's result instead of
		// bouncing.
		waitTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func storageKey(deviceID, attemptKey string) string {
	return "idem:" + deviceID + ":" + attemptKey
}

// GetOrReserve is the only mutual-exclusion point in the request path. The
// SETNX either hands ownership to this caller or routes it to the committed
// (or soon-to-be-committed) response of the owner.
func (c *cache) GetOrReserve(ctx context.Context, deviceID, attemptKey string) (Result, error) {
	key := storageKey(deviceID, attemptKey)

	reserved, err := c.redis.SetNX(ctx, key, pendingMarker, pendingTTL)
	if err != nil {
		c.logger.WithFields(log.Fields{
			"key":   key,
			"error": err.Error(),
		}).Error("Idempotency reserve failed; failing closed")
		return Result{}, ErrStoreUnavailable
	}

	if reserved {
		return Result{Hit: false}, nil
	}

	return c.awaitCommitted(ctx, key)
}

func (c *cache) awaitCommitted(ctx context.Context, key string) (Result, error) {
	deadline := time.Now().Add(c.waitTimeout)

	for {
		val, err := c.redis.Get(ctx, key)
		switch {
		case errors.Is(err, redisPkg.ErrNotFound):
			// The reservation expired or was released between our SETNX
			// and this read. The owner is gone; refuse rather than risk a
			// second execution racing a retry of the first.
			return Result{}, ErrInFlight
		case err != nil:
			return Result{}, ErrStoreUnavailable
		case val != pendingMarker:
			return Result{Hit: true, Response: val}, nil
		}

		if time.Now().After(deadline) {
			return Result{}, ErrInFlight
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// Commit stores the terminal response, success or error body alike, and
// starts the ten-minute replay window.
func (c *cache) Commit(ctx context.Context, deviceID, attemptKey, response string) error {
	key := storageKey(deviceID, attemptKey)
	if err := c.redis.Set(ctx, key, response, TTL); err != nil {
		c.logger.WithFields(log.Fields{
			"key":   key,
			"error": err.Error(),
		}).Error("Idempotency commit failed")
		return ErrStoreUnavailable
	}
	return nil
}

// Release drops a reservation without caching anything. Used when the
// attempt is canceled and no response may ever be replayed for its key.
func (c *cache) Release(ctx context.Context, deviceID, attemptKey string) error {
	key := storageKey(deviceID, attemptKey)
	if err := c.redis.Del(ctx, key); err != nil {
		return ErrStoreUnavailable
	}
	return nil
}
