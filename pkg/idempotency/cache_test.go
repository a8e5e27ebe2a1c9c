package idempotency

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"

	"JustNowBackend/pkg/log"
	redisPkg "JustNowBackend/pkg/redis"
)

// memoryRedis implements redisPkg.IRedis for tests; TTLs are honored via
// absolute expiry timestamps.
type memoryRedis struct {
	mu      sync.Mutex
	values  map[string]string
	expiry  map[string]time.Time
	failing bool
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{
		values: make(map[string]string),
		expiry: make(map[string]time.Time),
	}
}

func (m *memoryRedis) alive(key string) bool {
	if exp, ok := m.expiry[key]; ok && time.Now().After(exp) {
		delete(m.values, key)
		delete(m.expiry, key)
	}
	_, ok := m.values[key]
	return ok
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return "", errors.New("connection refused")
	}
	if !m.alive(key) {
		return "", redisPkg.ErrNotFound
	}
	return m.values[key], nil
}

func (m *memoryRedis) Set(_ context.Context, key, value string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("connection refused")
	}
	m.values[key] = value
	m.expiry[key] = time.Now().Add(expiration)
	return nil
}

func (m *memoryRedis) SetNX(_ context.Context, key, value string, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, errors.New("connection refused")
	}
	if m.alive(key) {
		return false, nil
	}
	m.values[key] = value
	m.expiry[key] = time.Now().Add(expiration)
	return true, nil
}

func (m *memoryRedis) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("connection refused")
	}
	delete(m.values, key)
	delete(m.expiry, key)
	return nil
}

func TestGetOrReserveMissThenHit(t *testing.T) {
	store := newMemoryRedis()
	c := New(store, log.NewLogger())
	ctx := context.Background()

	result, err := c.GetOrReserve(ctx, "device-1", "attempt-1")
	require.NoError(t, err)
	assert.False(t, result.Hit)

	require.NoError(t, c.Commit(ctx, "device-1", "attempt-1", `{"ok":true}`))

	result, err = c.GetOrReserve(ctx, "device-1", "attempt-1")
	require.NoError(t, err)
	assert.True(t, result.Hit)
	assert.Equal(t, `{"ok":true}`, result.Response)
}

func TestGetOrReserveKeysAreScopedByDevice(t *testing.T) {
	store := newMemoryRedis()
	c := New(store, log.NewLogger())
	ctx := context.Background()

	first, err := c.GetOrReserve(ctx, "device-1", "attempt-1")
	require.NoError(t, err)
	assert.False(t, first.Hit)

	// Same attempt key from another device is a different logical request.
	second, err := c.GetOrReserve(ctx, "device-2", "attempt-1")
	require.NoError(t, err)
	assert.False(t, second.Hit)
}

func TestConcurrentDuplicatesExecuteOnce(t *testing.T) {
	store := newMemoryRedis()
	c := New(store, log.NewLogger(), WithPollInterval(5*time.Millisecond))
	ctx := context.Background()

	var executions int32
	var mu sync.Mutex
	responses := make([]string, 0, 2)

	run := func() {
		result, err := c.GetOrReserve(ctx, "device-1", "attempt-x")
		require.NoError(t, err)

		if !result.Hit {
			mu.Lock()
			executions++
			mu.Unlock()
			// Simulate downstream work before commit.
			time.Sleep(30 * time.Millisecond)
			require.NoError(t, c.Commit(ctx, "device-1", "attempt-x", `{"n":1}`))
			result.Response = `{"n":1}`
		}

		mu.Lock()
		responses = append(responses, result.Response)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), executions, "exactly one downstream execution")
	require.Len(t, responses, 2)
	assert.Equal(t, responses[0], responses[1], "both observers see the identical response")
}

func TestDuplicateWaitTimesOutFailClosed(t *testing.T) {
	store := newMemoryRedis()
	c := New(store, log.NewLogger(),
		WithPollInterval(5*time.Millisecond),
		WithWaitTimeout(25*time.Millisecond),
	)
	ctx := context.Background()

	// Owner reserves and never commits.
	result, err := c.GetOrReserve(ctx, "device-1", "attempt-stuck")
	require.NoError(t, err)
	require.False(t, result.Hit)

	_, err = c.GetOrReserve(ctx, "device-1", "attempt-stuck")
	assert.ErrorIs(t, err, ErrInFlight)
}

func TestStoreFailureFailsClosed(t *testing.T) {
	store := newMemoryRedis()
	store.failing = true
	c := New(store, log.NewLogger())

	_, err := c.GetOrReserve(context.Background(), "device-1", "attempt-1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestReleaseDropsReservation(t *testing.T) {
	store := newMemoryRedis()
	c := New(store, log.NewLogger())
	ctx := context.Background()

	result, err := c.GetOrReserve(ctx, "device-1", "attempt-cancel")
	require.NoError(t, err)
	require.False(t, result.Hit)

	require.NoError(t, c.Release(ctx, "device-1", "attempt-cancel"))

	// A fresh session can reserve the key again.
	result, err = c.GetOrReserve(ctx, "device-1", "attempt-cancel")
	require.NoError(t, err)
	assert.False(t, result.Hit)
}
