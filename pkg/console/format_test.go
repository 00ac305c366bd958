package console

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/tradegate/pkg/form"
	"github.com/Mindburn-Labs/tradegate/pkg/reveal"
	"github.com/Mindburn-Labs/tradegate/pkg/workflow"
)

func TestUSD(t *testing.T) {
	assert.Equal(t, "$0", USD(0))
	assert.Equal(t, "$2,750", USD(2750))
	assert.Equal(t, "$1,234,568", USD(1234567.6))
	assert.Equal(t, "-$40", USD(-40.2))
}

func TestDeclaredUSD(t *testing.T) {
	assert.Equal(t, "$10,000", declaredUSD(form.State{Declared: " 10000 "}))
	assert.Equal(t, "$0", declaredUSD(form.State{Declared: "12abc"}))
}

func TestSummarize(t *testing.T) {
	s := summarize(form.State{Exporter: 4, Category: 2, Declared: "500"})
	assert.Equal(t, "Germany", s.Exporter)
	assert.Equal(t, "—", s.Importer)
	assert.Equal(t, "Steel", s.Category)
	assert.Equal(t, "$500", s.Declared)
}

func TestMachines_MountReplacesAndSweeps(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ms := newMachines(10*time.Minute, func() time.Time { return now }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	newM := func() *workflow.Machine {
		return workflow.New(workflow.Options{Scheduler: &reveal.ManualScheduler{}})
	}

	first := newM()
	ms.mount("b1", "u1", first)
	second := newM()
	ms.mount("b1", "u1", second)
	assert.ErrorIs(t, first.Edit(form.Category, "1"), workflow.ErrUnmounted, "previous view is unmounted")
	assert.NoError(t, second.Edit(form.Category, "1"))

	ms.mount("b2", "u2", newM())
	assert.Equal(t, 2, ms.len())

	now = now.Add(5 * time.Minute)
	_, ok := ms.get("b2", "u2")
	assert.True(t, ok)

	now = now.Add(6 * time.Minute)
	assert.Equal(t, 1, ms.sweep(), "only b1 has been idle long enough")
	_, ok = ms.get("b1", "u1")
	assert.False(t, ok)
	assert.ErrorIs(t, second.Edit(form.Category, "2"), workflow.ErrUnmounted)

	ms.drop("b2")
	assert.Zero(t, ms.len())
}

func TestMachines_OtherUserGetsNothing(t *testing.T) {
	ms := newMachines(0, time.Now, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m := workflow.New(workflow.Options{Scheduler: &reveal.ManualScheduler{}})
	ms.mount("b1", "alice", m)

	_, ok := ms.get("b1", "bob")
	assert.False(t, ok)
	assert.ErrorIs(t, m.Edit(form.Category, "1"), workflow.ErrUnmounted)
	assert.Zero(t, ms.len())
}
