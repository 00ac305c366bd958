package reveal

import (
	"sort"
	"sync"
	"time"
)

// FrameInterval is how long TimerScheduler waits for "the next frame".
const FrameInterval = 16 * time.Millisecond

// Scheduler defers work. Callbacks run on another goroutine (TimerScheduler)
// or when the test drives them (ManualScheduler).
type Scheduler interface {
	NextFrame(fn func())
	After(d time.Duration, fn func())
}

// TimerScheduler runs callbacks on runtime timers.
type TimerScheduler struct{}

func (TimerScheduler) NextFrame(fn func()) { time.AfterFunc(FrameInterval, fn) }

func (TimerScheduler) After(d time.Duration, fn func()) { time.AfterFunc(d, fn) }

// ManualScheduler queues callbacks until Frame or Advance is called.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	frames []func()
	timers []manualTimer
}

type manualTimer struct {
	at  time.Duration
	seq int
	fn  func()
}

func (m *ManualScheduler) NextFrame(fn func()) {
	m.mu.Lock()
	m.frames = append(m.frames, fn)
	m.mu.Unlock()
}

func (m *ManualScheduler) After(d time.Duration, fn func()) {
	m.mu.Lock()
	m.seq++
	m.timers = append(m.timers, manualTimer{at: m.now + d, seq: m.seq, fn: fn})
	m.mu.Unlock()
}

// Frame runs the callbacks queued for the next frame and returns how many ran.
// Callbacks queued while running wait for the following frame.
func (m *ManualScheduler) Frame() int {
	m.mu.Lock()
	due := m.frames
	m.frames = nil
	m.mu.Unlock()
	for _, fn := range due {
		fn()
	}
	return len(due)
}

// Advance moves the virtual clock forward by d and runs every timer that falls
// due, in deadline order.
func (m *ManualScheduler) Advance(d time.Duration) int {
	m.mu.Lock()
	m.now += d
	var due, rest []manualTimer
	for _, t := range m.timers {
		if t.at <= m.now {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	m.timers = rest
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at != due[j].at {
			return due[i].at < due[j].at
		}
		return due[i].seq < due[j].seq
	})
	for _, t := range due {
		t.fn()
	}
	return len(due)
}

// Pending returns the number of queued frame callbacks and timers.
func (m *ManualScheduler) Pending() (frames, timers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames), len(m.timers)
}
