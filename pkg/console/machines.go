package console

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/tradegate/pkg/workflow"
)

const (
	defaultMachineIdle = 30 * time.Minute
	janitorEvery       = time.Minute
)

type mounted struct {
	machine  *workflow.Machine
	userID   string
	lastSeen time.Time
}

// machines holds the calculator mounted by each browser for the user signed in
// when it was mounted. Mounting replaces and unmounts the previous machine, so
// a late result for an abandoned view is dropped.
type machines struct {
	mu     sync.Mutex
	byKey  map[string]*mounted
	idle   time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func newMachines(idle time.Duration, now func() time.Time, logger *slog.Logger) *machines {
	if idle <= 0 {
		idle = defaultMachineIdle
	}
	return &machines{byKey: make(map[string]*mounted), idle: idle, now: now, logger: logger}
}

func (ms *machines) mount(key, userID string, m *workflow.Machine) {
	ms.mu.Lock()
	prev := ms.byKey[key]
	ms.byKey[key] = &mounted{machine: m, userID: userID, lastSeen: ms.now()}
	ms.mu.Unlock()
	if prev != nil {
		prev.machine.Unmount()
	}
}

// get returns the browser's machine when it belongs to userID. A machine
// mounted for another user is unmounted and forgotten.
func (ms *machines) get(key, userID string) (*workflow.Machine, bool) {
	ms.mu.Lock()
	e, ok := ms.byKey[key]
	if !ok {
		ms.mu.Unlock()
		return nil, false
	}
	if e.userID != userID {
		delete(ms.byKey, key)
		ms.mu.Unlock()
		e.machine.Unmount()
		return nil, false
	}
	e.lastSeen = ms.now()
	ms.mu.Unlock()
	return e.machine, true
}

func (ms *machines) drop(key string) {
	ms.mu.Lock()
	e := ms.byKey[key]
	delete(ms.byKey, key)
	ms.mu.Unlock()
	if e != nil {
		e.machine.Unmount()
	}
}

func (ms *machines) len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.byKey)
}

// sweep unmounts machines idle for longer than the idle limit. Busy machines
// are kept until their request finishes.
func (ms *machines) sweep() int {
	cutoff := ms.now().Add(-ms.idle)
	var evicted []*workflow.Machine

	ms.mu.Lock()
	for key, e := range ms.byKey {
		if e.lastSeen.Before(cutoff) && !e.machine.Busy() {
			evicted = append(evicted, e.machine)
			delete(ms.byKey, key)
		}
	}
	ms.mu.Unlock()

	for _, m := range evicted {
		m.Unmount()
	}
	return len(evicted)
}

func (ms *machines) janitor(ctx context.Context) {
	ticker := time.NewTicker(janitorEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ms.sweep(); n > 0 {
				ms.logger.DebugContext(ctx, "evicted idle calculators", "count", n)
			}
		}
	}
}
