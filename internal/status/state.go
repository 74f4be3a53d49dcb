package status

import (
	"fmt"
	"slices"
)

// State is the delivery state of a single snapshot row.
type State string

const (
	Pending     State = "PENDING"
	RateLimited State = "RATE_LIMITED"
	Sent        State = "SENT"
	Fatal       State = "FATAL"
)

// validTransitions defines allowed state transitions. Sent covers both a
// clean post and one the destination rejected at the application level.
var validTransitions = map[State][]State{
	Pending:     {Sent, RateLimited},
	RateLimited: {Sent, Fatal},
}

// Machine tracks one row through delivery.
type Machine struct {
	ordinal int
	current State
	history []State
}

// NewMachine creates a machine for the row at ordinal, starting in Pending.
func NewMachine(ordinal int) *Machine {
	return &Machine{
		ordinal: ordinal,
		current: Pending,
		history: []State{Pending},
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	return m.current
}

// Ordinal returns the row's position in chronological order.
func (m *Machine) Ordinal() int {
	return m.ordinal
}

// History returns every state the row has been in, oldest first.
func (m *Machine) History() []State {
	return slices.Clone(m.history)
}

// Terminal reports whether the row has finished delivery either way.
func (m *Machine) Terminal() bool {
	return len(validTransitions[m.current]) == 0
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("row %d: invalid transition from %s to %s", m.ordinal, m.current, to)
	}
	m.current = to
	m.history = append(m.history, to)
	return nil
}
