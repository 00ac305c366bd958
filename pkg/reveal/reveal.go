// Package reveal controls how a result panel appears and disappears.
//
// Showing is two-phase: the data is mounted hidden and flipped visible on the
// next frame, so a transition can run. Hiding is two-phase too: the panel is
// hidden at once and the data discarded after HideDelay, so the exit
// transition still has something to render.
package reveal

import (
	"sync"
	"time"
)

// HideDelay is how long retracted data is kept before it is discarded.
const HideDelay = 300 * time.Millisecond

// Snapshot is the panel as it should currently render.
type Snapshot[T any] struct {
	Data    *T
	Visible bool
}

// Controller holds at most one value of T. Every Show and Retract bumps a
// generation; deferred callbacks from an older generation do nothing.
type Controller[T any] struct {
	mu         sync.Mutex
	sched      Scheduler
	data       *T
	visible    bool
	retracting bool
	gen        uint64
	retracts   int
}

func New[T any](s Scheduler) *Controller[T] {
	if s == nil {
		s = TimerScheduler{}
	}
	return &Controller[T]{sched: s}
}

// Show replaces any current value with v, mounted hidden, and schedules it to
// become visible on the next frame. A pending discard from an earlier Retract
// is cancelled.
func (c *Controller[T]) Show(v T) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.data = &v
	c.visible = false
	c.retracting = false
	c.mu.Unlock()

	c.sched.NextFrame(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen == gen {
			c.visible = true
		}
	})
}

// Retract hides the displayed value immediately and discards it after
// HideDelay. It reports false, and does nothing, when no value is displayed
// or one is already being retracted.
func (c *Controller[T]) Retract() bool {
	c.mu.Lock()
	if c.data == nil || c.retracting {
		c.mu.Unlock()
		return false
	}
	c.gen++
	gen := c.gen
	c.visible = false
	c.retracting = true
	c.retracts++
	c.mu.Unlock()

	c.sched.After(HideDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen == gen {
			c.data = nil
			c.retracting = false
		}
	})
	return true
}

// Reset drops the value at once and invalidates every pending callback.
func (c *Controller[T]) Reset() {
	c.mu.Lock()
	c.gen++
	c.data = nil
	c.visible = false
	c.retracting = false
	c.mu.Unlock()
}

// Displayed reports whether a value is mounted and not being retracted.
func (c *Controller[T]) Displayed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data != nil && !c.retracting
}

// Retractions counts successful Retract calls.
func (c *Controller[T]) Retractions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retracts
}

// Snapshot returns a copy of the current state.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot[T]{Visible: c.visible}
	if c.data != nil {
		v := *c.data
		s.Data = &v
	}
	return s
}
