// Package workflow runs the calculator form: edits, validation, the single
// in-flight calculation request and the reveal of its result.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Mindburn-Labs/tradegate/pkg/calculator"
	"github.com/Mindburn-Labs/tradegate/pkg/catalog"
	"github.com/Mindburn-Labs/tradegate/pkg/form"
	"github.com/Mindburn-Labs/tradegate/pkg/reveal"
)

var (
	// ErrBusy is returned by Submit while a request is in flight.
	ErrBusy = errors.New("a calculation is already in progress")
	// ErrInvalid is returned by Submit when the form fails validation.
	ErrInvalid = errors.New("form has invalid fields")
	// ErrUnmounted is returned once the view owning the machine has gone.
	ErrUnmounted = errors.New("calculator view is no longer mounted")
)

// ResultHook observes every successful calculation.
type ResultHook func(ctx context.Context, req calculator.Request, res calculator.Result) error

// Options configures a Machine.
type Options struct {
	Calculator calculator.Calculator
	Scheduler  reveal.Scheduler
	OnResult   ResultHook
	Logger     *slog.Logger
}

// Snapshot is everything a view needs to render the calculator.
type Snapshot struct {
	State         State              `json:"state"`
	Form          form.State         `json:"form"`
	Errors        form.Errors        `json:"errors"`
	Error         string             `json:"error,omitempty"`
	Busy          bool               `json:"busy"`
	Result        *calculator.Result `json:"result,omitempty"`
	ResultVisible bool               `json:"result_visible"`
	// ScrollSeq increments on each success; a view scrolls the result into
	// view when it sees a new value.
	ScrollSeq uint64 `json:"scroll_seq"`
}

// Machine is one mounted calculator view.
type Machine struct {
	mu        sync.Mutex
	state     State
	form      form.State
	errors    form.Errors
	topError  string
	busy      bool
	unmounted bool
	scrollSeq uint64

	result   *reveal.Controller[calculator.Result]
	calc     calculator.Calculator
	onResult ResultHook
	logger   *slog.Logger
}

func New(opts Options) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		state:    Idle,
		form:     form.NewState(),
		errors:   form.Errors{},
		result:   reveal.New[calculator.Result](opts.Scheduler),
		calc:     opts.Calculator,
		onResult: opts.OnResult,
		logger:   logger.With("component", "workflow"),
	}
}

// fire applies ev. Must be called with m.mu held.
func (m *Machine) fire(ev event) error {
	to, ok := nextState(m.state, ev)
	if !ok {
		return fmt.Errorf("workflow: event %d not allowed in state %s", ev, m.state)
	}
	m.state = to
	return nil
}

// Prefill sets the exporter from a saved home country and marks it prefilled.
// Invalid countries are ignored.
func (m *Machine) Prefill(c catalog.CountryID) {
	if !c.Valid() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.form.Exporter = c
	m.form.Prefilled = true
	m.errors = form.CheckConflict(m.errors, m.form)
}

// Edit sets field f from raw input. Country edits re-run the conflict check.
// A displayed result is retracted and a finished submission returns to Idle.
// On a parse error nothing changes.
func (m *Machine) Edit(f form.Field, raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unmounted {
		return ErrUnmounted
	}

	next := m.form
	if err := next.Set(f, raw); err != nil {
		return err
	}
	m.form = next
	if f == form.Exporter || f == form.Importer {
		m.errors = form.CheckConflict(m.errors, m.form)
	}
	m.result.Retract()
	if m.state.Terminal() {
		_ = m.fire(evReset)
	}
	return nil
}

// Submit validates the form and, when valid, sends exactly one calculation
// request. It blocks until the request completes. The lock is not held while
// the request is in flight, so Snapshot and Edit stay responsive and a
// concurrent Submit gets ErrBusy.
func (m *Machine) Submit(ctx context.Context) error {
	m.mu.Lock()
	if m.unmounted {
		m.mu.Unlock()
		return ErrUnmounted
	}
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	if m.state.Terminal() {
		_ = m.fire(evReset)
	}
	m.topError = ""
	if err := m.fire(evSubmit); err != nil {
		m.mu.Unlock()
		return err
	}

	m.errors = form.Validate(m.form)
	if !m.errors.Empty() {
		_ = m.fire(evInvalid)
		m.mu.Unlock()
		return ErrInvalid
	}
	req, err := m.form.Request()
	if err != nil {
		_ = m.fire(evInvalid)
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	_ = m.fire(evValid)
	m.result.Retract()
	m.topError = ""
	m.busy = true
	m.mu.Unlock()

	res, calcErr := m.calc.Calculate(ctx, req)

	m.mu.Lock()
	if m.unmounted {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "discarding calculation result for unmounted view")
		return ErrUnmounted
	}
	m.busy = false
	if calcErr != nil {
		_ = m.fire(evFailed)
		m.topError = calculator.UserMessage(calcErr)
		m.mu.Unlock()
		return calcErr
	}
	_ = m.fire(evSucceeded)
	m.result.Show(*res)
	m.scrollSeq++
	m.mu.Unlock()

	if m.onResult != nil {
		if err := m.onResult(ctx, req, *res); err != nil {
			m.logger.WarnContext(ctx, "result hook failed", "error", err)
		}
	}
	return nil
}

// Unmount detaches the machine from its view. Results that arrive later are
// dropped and further edits or submissions fail with ErrUnmounted.
func (m *Machine) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmounted = true
	m.busy = false
	m.result.Reset()
}

// Busy reports whether a request is in flight.
func (m *Machine) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// Retractions counts how many times a displayed result was retracted.
func (m *Machine) Retractions() int {
	return m.result.Retractions()
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	panel := m.result.Snapshot()
	return Snapshot{
		State:         m.state,
		Form:          m.form,
		Errors:        m.errors.Clone(),
		Error:         m.topError,
		Busy:          m.busy,
		Result:        panel.Data,
		ResultVisible: panel.Visible,
		ScrollSeq:     m.scrollSeq,
	}
}
