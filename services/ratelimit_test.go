package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock provides a controllable time source for limiter tests
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(max int, window time.Duration) (*Limiter, *testClock) {
	clock := newTestClock()
	l := NewLimiter(max, window)
	l.now = clock.Now
	return l, clock
}

func TestLimiterCheckDoesNotMutate(t *testing.T) {
	l, _ := newTestLimiter(3, time.Hour)

	for i := 0; i < 10; i++ {
		st := l.Check("refresh:1")
		assert.True(t, st.Allowed)
		assert.Equal(t, 0, st.Count)
	}
}

func TestLimiterAllowedBelowLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Hour)

	l.Increment("refresh:1", 2)
	st := l.Check("refresh:1")
	assert.True(t, st.Allowed)
	assert.Equal(t, 2, st.Count)

	l.Increment("refresh:1", 1)
	st = l.Check("refresh:1")
	assert.False(t, st.Allowed)
	assert.Equal(t, 3, st.Count)
}

func TestLimiterSubjectsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(2, time.Hour)

	l.Increment("refresh:1", 2)
	assert.False(t, l.Check("refresh:1").Allowed)
	assert.True(t, l.Check("refresh:2").Allowed)
}

func TestLimiterWindowExpiryIsExclusive(t *testing.T) {
	l, clock := newTestLimiter(2, time.Hour)

	l.Increment("refresh:1", 2)
	assert.False(t, l.Check("refresh:1").Allowed)

	// One nanosecond before resetAt the window is still active
	clock.Advance(time.Hour - time.Nanosecond)
	st := l.Check("refresh:1")
	assert.False(t, st.Allowed)
	assert.Equal(t, 2, st.Count)

	// Exactly at resetAt a fresh window starts
	clock.Advance(time.Nanosecond)
	st = l.Check("refresh:1")
	assert.True(t, st.Allowed)
	assert.Equal(t, 0, st.Count)
}

func TestLimiterIncrementPreservesResetAt(t *testing.T) {
	l, clock := newTestLimiter(10, time.Hour)

	l.Increment("refresh:1", 1)
	first := l.Check("refresh:1").ResetAt

	clock.Advance(10 * time.Minute)
	l.Increment("refresh:1", 1)
	assert.Equal(t, first, l.Check("refresh:1").ResetAt)
}

func TestLimiterReserveAllOrNothing(t *testing.T) {
	l, _ := newTestLimiter(5, time.Hour)

	l.Increment("refresh:1", 3)

	// A batch of 3 would exceed 5; nothing may be consumed
	st, ok := l.Reserve("refresh:1", 3)
	require.False(t, ok)
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, 3, l.Check("refresh:1").Count)

	// A batch of 2 fits exactly
	st, ok = l.Reserve("refresh:1", 2)
	require.True(t, ok)
	assert.Equal(t, 5, st.Count)
	assert.False(t, l.Check("refresh:1").Allowed)
}

func TestLimiterReleaseReturnsUnits(t *testing.T) {
	l, _ := newTestLimiter(5, time.Hour)

	_, ok := l.Reserve("refresh:1", 5)
	require.True(t, ok)

	l.Release("refresh:1", 2)
	st := l.Check("refresh:1")
	assert.Equal(t, 3, st.Count)
	assert.True(t, st.Allowed)
}

func TestLimiterReleaseAfterRolloverIsNoop(t *testing.T) {
	l, clock := newTestLimiter(5, time.Hour)

	_, ok := l.Reserve("refresh:1", 3)
	require.True(t, ok)

	clock.Advance(2 * time.Hour)
	l.Release("refresh:1", 3)

	l.Increment("refresh:1", 2)
	assert.Equal(t, 2, l.Check("refresh:1").Count)
}

func TestLimiterReleaseFloorsAtZero(t *testing.T) {
	l, _ := newTestLimiter(5, time.Hour)

	l.Increment("refresh:1", 1)
	l.Release("refresh:1", 10)
	assert.Equal(t, 0, l.Check("refresh:1").Count)
}

func TestLimiterConcurrentReserveNeverOversubscribes(t *testing.T) {
	l, _ := newTestLimiter(100, time.Hour)

	var wg sync.WaitGroup
	admitted := make(chan int, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := l.Reserve("refresh:1", 1); ok {
				admitted <- 1
			}
		}()
	}
	wg.Wait()
	close(admitted)

	total := 0
	for range admitted {
		total++
	}
	assert.Equal(t, 100, total)
	assert.Equal(t, 100, l.Check("refresh:1").Count)
}

func TestLimiterPruneDropsStaleEntries(t *testing.T) {
	l, clock := newTestLimiter(5, time.Hour)

	l.Increment("refresh:1", 1)
	l.Prune()
	assert.Len(t, l.entries, 1)

	clock.Advance(2*time.Hour + time.Minute)
	l.Prune()
	assert.Len(t, l.entries, 0)
}
