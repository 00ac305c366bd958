package workflow

import "fmt"

// State is the phase of the calculator workflow.
type State int

const (
	Idle State = iota
	Validating
	Submitting
	Succeeded
	Failed
)

var stateNames = [...]string{"idle", "validating", "submitting", "succeeded", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether s ends a submission.
func (s State) Terminal() bool { return s == Succeeded || s == Failed }

type event int

const (
	evSubmit event = iota
	evValid
	evInvalid
	evSucceeded
	evFailed
	evReset
)

type transition struct {
	from  State
	event event
	to    State
}

var transitionsTable = []transition{
	{from: Idle, event: evSubmit, to: Validating},
	{from: Validating, event: evInvalid, to: Idle},
	{from: Validating, event: evValid, to: Submitting},
	{from: Submitting, event: evSucceeded, to: Succeeded},
	{from: Submitting, event: evFailed, to: Failed},
	{from: Succeeded, event: evReset, to: Idle},
	{from: Failed, event: evReset, to: Idle},
}

func nextState(from State, ev event) (State, bool) {
	for _, tr := range transitionsTable {
		if tr.from == from && tr.event == ev {
			return tr.to, true
		}
	}
	return from, false
}
