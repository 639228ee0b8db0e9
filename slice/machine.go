// Package slice implements the per-waveform activation state machine (C6):
// Inactive/Active transitions driven by control-plane status messages, and
// the PTT/unkey interlock events that ride alongside them.
package slice

import "sync"

// State is a waveform's current slice-activation state.
type State int

const (
	Inactive State = iota
	Active
)

// Event is what a state callback is told happened.
type Event int

const (
	EventActive Event = iota
	EventInactive
	EventPTTRequested
	EventUnkeyRequested
)

func (e Event) String() string {
	switch e {
	case EventActive:
		return "ACTIVE"
	case EventInactive:
		return "INACTIVE"
	case EventPTTRequested:
		return "PTT_REQUESTED"
	case EventUnkeyRequested:
		return "UNKEY_REQUESTED"
	default:
		return "UNKNOWN"
	}
}

// StateCallback receives activation/interlock transitions. slice is only
// meaningful for EventActive/EventInactive.
type StateCallback func(event Event, slice int)

// Machine is one waveform's slice state machine, keyed by the waveform's
// short name (≤4 chars, spec §3).
type Machine struct {
	shortName string

	mu          sync.Mutex
	state       State
	activeSlice int

	callbacks []StateCallback

	// activate/deactivate build and tear down the data-plane loop on
	// transition (spec §4.6). Both may be nil until the owning waveform
	// wires them up.
	activate   func(slice int) error
	deactivate func() error

	// schedule runs state-callback invocations on thread pool D, normal
	// priority (spec §4.6 "Event delivery: through the worker queue at
	// normal priority"). Defaults to direct invocation, which is adequate
	// for tests; the radio registry supplies control.CallbackPool.Go.
	schedule func(func())
}

// New creates a Machine for a waveform identified by shortName.
func New(shortName string) *Machine {
	return &Machine{shortName: shortName, state: Inactive, schedule: func(fn func()) { fn() }}
}

// SetScheduler overrides how state-callback invocations are dispatched.
func (m *Machine) SetScheduler(schedule func(func())) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule = schedule
}

// OnStateChange registers a callback, appended in registration order (spec
// §3's CallbackEntry insertion-order rule).
func (m *Machine) OnStateChange(cb StateCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// SetLifecycle wires the data-plane construction/teardown hooks invoked on
// activation/deactivation.
func (m *Machine) SetLifecycle(activate func(slice int) error, deactivate func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activate = activate
	m.deactivate = deactivate
}

// State returns the current state and, if Active, the owning slice index.
func (m *Machine) State() (State, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.activeSlice
}

// HandleSliceStatus applies a "slice <n> mode=<mode>" status line (spec
// §4.6). Invariant 8: a waveform has at most one active slice; a second
// slice's activation attempt while already active is a no-op.
func (m *Machine) HandleSliceStatus(sliceNum int, mode string) {
	m.mu.Lock()

	var fire Event
	var fireSlice int
	shouldFire := false
	var doActivate, doDeactivate func() error

	switch m.state {
	case Inactive:
		if mode == m.shortName {
			m.state = Active
			m.activeSlice = sliceNum
			fire, fireSlice, shouldFire = EventActive, sliceNum, true
			if m.activate != nil {
				s := sliceNum
				doActivate = func() error { return m.activate(s) }
			}
		}
		// mode doesn't match, or a different slice reports activation
		// while we're inactive for a third slice: no-op either way.

	case Active:
		if sliceNum == m.activeSlice && mode != m.shortName {
			m.state = Inactive
			prevSlice := m.activeSlice
			m.activeSlice = 0
			fire, fireSlice, shouldFire = EventInactive, prevSlice, true
			doDeactivate = m.deactivate
		}
		// A status for a different slice number doesn't affect this
		// waveform's own active slice (invariant 8).
	}

	callbacks := append([]StateCallback(nil), m.callbacks...)
	schedule := m.schedule
	m.mu.Unlock()

	// Spec §4.6: state callbacks fire with ACTIVE before the data-plane
	// loop is initialized, and with INACTIVE before it's torn down — never
	// the other way around.
	if shouldFire {
		for _, cb := range callbacks {
			cb := cb
			schedule(func() { cb(fire, fireSlice) })
		}
	}

	if doActivate != nil {
		_ = doActivate()
	}
	if doDeactivate != nil {
		_ = doDeactivate()
	}
}

// HandlePTTRequested fires every callback with EventPTTRequested if this
// waveform is currently active. The contract the user must honor is to stop
// emitting RX packets before the callback returns (spec §4.6).
func (m *Machine) HandlePTTRequested() {
	m.fireInterlock(EventPTTRequested)
}

// HandleUnkeyRequested is the symmetric counterpart to HandlePTTRequested.
func (m *Machine) HandleUnkeyRequested() {
	m.fireInterlock(EventUnkeyRequested)
}

func (m *Machine) fireInterlock(event Event) {
	m.mu.Lock()
	active := m.state == Active
	slice := m.activeSlice
	callbacks := append([]StateCallback(nil), m.callbacks...)
	schedule := m.schedule
	m.mu.Unlock()

	if !active {
		return
	}
	for _, cb := range callbacks {
		cb := cb
		schedule(func() { cb(event, slice) })
	}
}
