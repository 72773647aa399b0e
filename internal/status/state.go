// Package status tracks the sync coordinator's runtime state.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chronsync/internal/bus"
)

// State is the coordinator's sync state.
type State string

const (
	Idle    State = "idle"
	Syncing State = "syncing"
	Error   State = "error"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:    {Syncing},
	Syncing: {Idle, Error},
	Error:   {Syncing},
}

// Machine tracks and enforces sync state transitions. Being in Syncing is
// what marks a cycle as in flight.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

// TryBegin moves to Syncing unless a cycle is already in flight. It reports
// whether the caller now owns the cycle.
func (m *Machine) TryBegin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == Syncing {
		return false
	}
	return m.transitionLocked(Syncing) == nil
}

// Finish leaves Syncing for Idle, or for Error when failed is set.
func (m *Machine) Finish(failed bool) error {
	to := Idle
	if failed {
		to = Error
	}
	return m.Transition(to)
}

func (m *Machine) transitionLocked(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
