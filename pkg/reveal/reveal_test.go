package reveal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panel struct{ Label string }

func TestShow_TwoPhase(t *testing.T) {
	var s ManualScheduler
	c := New[panel](&s)

	c.Show(panel{"a"})
	snap := c.Snapshot()
	require.NotNil(t, snap.Data)
	assert.False(t, snap.Visible, "mounted hidden first")

	assert.Equal(t, 1, s.Frame())
	assert.True(t, c.Snapshot().Visible)
}

func TestRetract_TwoPhase(t *testing.T) {
	var s ManualScheduler
	c := New[panel](&s)
	c.Show(panel{"a"})
	s.Frame()

	require.True(t, c.Retract())
	snap := c.Snapshot()
	assert.False(t, snap.Visible, "hidden immediately")
	require.NotNil(t, snap.Data, "data kept for the exit transition")

	s.Advance(HideDelay - time.Millisecond)
	assert.NotNil(t, c.Snapshot().Data)
	s.Advance(time.Millisecond)
	assert.Nil(t, c.Snapshot().Data)
}

func TestRetract_OnlyOncePerDisplay(t *testing.T) {
	var s ManualScheduler
	c := New[panel](&s)
	assert.False(t, c.Retract(), "nothing to retract")

	c.Show(panel{"a"})
	s.Frame()
	assert.True(t, c.Retract())
	assert.False(t, c.Retract())
	assert.False(t, c.Retract())
	assert.Equal(t, 1, c.Retractions())

	_, timers := s.Pending()
	assert.Equal(t, 1, timers)
}

func TestShow_CancelsPendingDiscard(t *testing.T) {
	var s ManualScheduler
	c := New[panel](&s)
	c.Show(panel{"old"})
	s.Frame()
	c.Retract()

	// A fast response lands before the discard timer fires.
	s.Advance(100 * time.Millisecond)
	c.Show(panel{"new"})
	s.Frame()
	s.Advance(HideDelay)

	snap := c.Snapshot()
	require.NotNil(t, snap.Data)
	assert.Equal(t, "new", snap.Data.Label)
	assert.True(t, snap.Visible)
}

func TestRetract_BeforeFrameCancelsFlip(t *testing.T) {
	var s ManualScheduler
	c := New[panel](&s)
	c.Show(panel{"a"})
	c.Retract()
	s.Frame()

	assert.False(t, c.Snapshot().Visible)
}

func TestShow_ReplacesWholesale(t *testing.T) {
	var s ManualScheduler
	c := New[panel](&s)
	c.Show(panel{"a"})
	s.Frame()
	c.Show(panel{"b"})

	snap := c.Snapshot()
	assert.Equal(t, "b", snap.Data.Label)
	assert.False(t, snap.Visible)
	s.Frame()
	assert.True(t, c.Snapshot().Visible)
}

func TestReset(t *testing.T) {
	var s ManualScheduler
	c := New[panel](&s)
	c.Show(panel{"a"})
	c.Reset()
	s.Frame()
	assert.Equal(t, Snapshot[panel]{}, c.Snapshot())
}

func TestTimerScheduler(t *testing.T) {
	c := New[panel](TimerScheduler{})
	c.Show(panel{"a"})
	require.Eventually(t, func() bool { return c.Snapshot().Visible }, time.Second, 5*time.Millisecond)

	c.Retract()
	require.Eventually(t, func() bool { return c.Snapshot().Data == nil }, 2*time.Second, 10*time.Millisecond)
}

func TestManualScheduler_OrdersTimers(t *testing.T) {
	var s ManualScheduler
	var mu sync.Mutex
	var order []int
	record := func(n int) func() {
		return func() { mu.Lock(); order = append(order, n); mu.Unlock() }
	}
	s.After(30*time.Millisecond, record(3))
	s.After(10*time.Millisecond, record(1))
	s.After(10*time.Millisecond, record(2))

	assert.Equal(t, 3, s.Advance(time.Second))
	assert.Equal(t, []int{1, 2, 3}, order)
}
