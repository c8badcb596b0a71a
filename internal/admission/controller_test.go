package admission

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestController() *Controller {
	return NewController(Config{MaxConcurrent: 3, Cooldown: 30 * time.Second})
}

func TestTryAdmitCooldown(t *testing.T) {
	t.Parallel()

	c := newTestController()
	start := time.Now()

	slot, err := c.TryAdmit(1, start)
	require.NoError(t, err)
	slot.Release()

	prev := 1 << 30
	for _, offset := range []time.Duration{0, time.Second, 10500 * time.Millisecond, 29 * time.Second, 29900 * time.Millisecond} {
		_, err := c.TryAdmit(1, start.Add(offset))
		rej, ok := AsRejected(err)
		require.True(t, ok, "offset %s", offset)
		require.Equal(t, ReasonCooldown, rej.Reason)
		require.LessOrEqual(t, rej.Detail, prev, "remaining time must not grow")
		require.Positive(t, rej.Detail)
		prev = rej.Detail
	}

	_, err = c.TryAdmit(1, start.Add(30*time.Second))
	require.NoError(t, err)
}

func TestTryAdmitCooldownSecondsRoundUp(t *testing.T) {
	t.Parallel()

	c := newTestController()
	start := time.Now()
	_, err := c.TryAdmit(7, start)
	require.NoError(t, err)
	c.Release(7)

	_, err = c.TryAdmit(7, start.Add(500*time.Millisecond))
	rej, ok := AsRejected(err)
	require.True(t, ok)
	require.Equal(t, 30, rej.Detail)
}

func TestTryAdmitCapacity(t *testing.T) {
	t.Parallel()

	c := newTestController()
	now := time.Now()

	for id := int64(1); id <= 3; id++ {
		_, err := c.TryAdmit(id, now)
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Active())

	_, err := c.TryAdmit(4, now)
	rej, ok := AsRejected(err)
	require.True(t, ok)
	require.Equal(t, ReasonCapacity, rej.Reason)
	require.Equal(t, 4, rej.Detail)
	require.Equal(t, 3, c.Active())

	c.Release(2)
	_, err = c.TryAdmit(4, now)
	require.NoError(t, err)
}

func TestTryAdmitRejectsSecondSlotForSameCaller(t *testing.T) {
	t.Parallel()

	c := NewController(Config{MaxConcurrent: 3, Cooldown: time.Second})
	now := time.Now()

	_, err := c.TryAdmit(1, now)
	require.NoError(t, err)

	_, err = c.TryAdmit(1, now.Add(2*time.Second))
	rej, ok := AsRejected(err)
	require.True(t, ok)
	require.Equal(t, ReasonInFlight, rej.Reason)
	require.Equal(t, 1, c.Active())
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	c := newTestController()
	now := time.Now()

	slot, err := c.TryAdmit(1, now)
	require.NoError(t, err)
	_, err = c.TryAdmit(2, now)
	require.NoError(t, err)

	slot.Release()
	slot.Release()
	c.Release(1)
	c.Release(1)
	c.Release(99)

	require.Equal(t, 1, c.Active())
	require.True(t, c.Holds(2))
}

func TestStaleSlotReleaseKeepsNewerAdmission(t *testing.T) {
	t.Parallel()

	c := NewController(Config{MaxConcurrent: 3, Cooldown: time.Second})
	now := time.Now()

	old, err := c.TryAdmit(1, now)
	require.NoError(t, err)

	// forced release at the deadline, then the caller comes back
	c.Release(1)
	fresh, err := c.TryAdmit(1, now.Add(2*time.Second))
	require.NoError(t, err)

	old.Release()
	require.True(t, c.Holds(1))

	fresh.Release()
	require.False(t, c.Holds(1))
}

func TestConcurrentAdmissionNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	c := newTestController()
	now := time.Now()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for id := int64(0); id < 50; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := c.TryAdmit(id, now); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	require.Equal(t, 3, admitted)
	require.Equal(t, 3, c.Active())
}

func TestNewControllerDefaults(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	require.Equal(t, DefaultMaxConcurrent, c.max)
	require.Equal(t, DefaultCooldown, c.cooldown)
}
