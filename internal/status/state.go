package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/bazaar/internal/bus"
)

// State is the lifecycle state of the chat connection.
type State string

const (
	Idle       State = "IDLE"
	Connecting State = "CONNECTING"
	Open       State = "OPEN"
	Closing    State = "CLOSING"
	Closed     State = "CLOSED"
)

// validTransitions lists the states reachable from each state.
// Connecting -> Idle is a failed initial dial; Connecting -> Closed is a
// failed reconnect dial, which keeps the reconnect chain alive.
var validTransitions = map[State][]State{
	Idle:       {Connecting},
	Connecting: {Open, Idle, Closing, Closed},
	Open:       {Closing, Closed},
	Closing:    {Closed},
	Closed:     {Connecting, Idle},
}

// Machine tracks the connection state and rejects illegal transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the Idle state. b may be nil.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Idle, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// In reports whether the current state is one of states.
func (m *Machine) In(states ...State) bool {
	return slices.Contains(states, m.Current())
}

// Transition moves to the given state. Moving to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.current
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !slices.Contains(validTransitions[from], to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	m.current = to
	m.mu.Unlock()

	m.bus.Publish(bus.NewEvent(bus.KindStateChanged, 0, Change{From: from, To: to}))
	return nil
}

// Change is the payload of connection.state_changed events.
type Change struct {
	From State
	To   State
}
