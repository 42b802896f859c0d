// Package workloop implements the thread-safe life-cycle state and
// control-signal mailbox shared between the worker goroutine (running
// the fix-forward engine) and the REPL goroutine.
package workloop

import (
	"sync"
	"time"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
	"github.com/re-cinq/aidp-loop/internal/clock"
)

// Phase is the closed enum a State's phase must belong to.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhasePaused    Phase = "paused"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
	PhaseError     Phase = "error"
)

// legalTransitions enumerates the transition graph from §3: idle to
// running, running/paused toggling freely, and any live phase to a
// terminal one.
var legalTransitions = map[Phase]map[Phase]bool{
	PhaseIdle:    {PhaseRunning: true},
	PhaseRunning: {PhasePaused: true, PhaseCompleted: true, PhaseCancelled: true, PhaseError: true},
	PhasePaused:  {PhaseRunning: true, PhaseCompleted: true, PhaseCancelled: true, PhaseError: true},
}

// OutputEntry is one line appended to the live output buffer.
type OutputEntry struct {
	Message   string
	Type      string
	Timestamp time.Time
}

// State is the thread-safe life-cycle singleton owned by one running
// step's AsyncRunner. All methods are safe for concurrent use; appends
// never block the worker.
type State struct {
	clock clock.Clock

	mu        sync.Mutex
	phase     Phase
	iteration int
	lastError error

	output []OutputEntry

	guardUpdates map[string]string
	configReload bool
}

// New builds a State parked at idle.
func New(c clock.Clock) *State {
	if c == nil {
		c = clock.Real{}
	}
	return &State{clock: c, phase: PhaseIdle, guardUpdates: make(map[string]string)}
}

// Snapshot is an immutable view of State for callers outside the lock.
type Snapshot struct {
	Phase     Phase
	Iteration int
	LastError error
}

// Snapshot returns the current phase/iteration/lastError.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Phase: s.phase, Iteration: s.iteration, LastError: s.lastError}
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Transition moves the state machine to "to", validating the
// transition graph. Illegal transitions return InvalidState and leave
// the phase unchanged.
func (s *State) Transition(to Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == to {
		return nil
	}
	allowed, ok := legalTransitions[s.phase]
	if !ok || !allowed[to] {
		return &aidperr.InvalidState{From: string(s.phase), To: string(to)}
	}
	s.phase = to
	return nil
}

// IncrementIteration bumps the iteration counter and returns the new
// value.
func (s *State) IncrementIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iteration++
	return s.iteration
}

// Iteration returns the current iteration count without mutating it.
func (s *State) Iteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iteration
}

// SetError records lastError and is typically followed by a
// transition to PhaseError.
func (s *State) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
}

// AppendOutput adds one line to the live output buffer. Never blocks.
func (s *State) AppendOutput(message, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = append(s.output, OutputEntry{Message: message, Type: kind, Timestamp: s.clock.Now()})
}

// DrainOutput returns and clears the buffered output lines.
func (s *State) DrainOutput() []OutputEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.output
	s.output = nil
	return out
}

// RequestGuardUpdate stages a pending guard-policy key/value update,
// to be drained by the engine at the next iteration boundary.
func (s *State) RequestGuardUpdate(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guardUpdates[key] = value
}

// DrainGuardUpdates returns and clears the staged guard updates.
func (s *State) DrainGuardUpdates() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.guardUpdates
	s.guardUpdates = make(map[string]string)
	return out
}

// RequestConfigReload flags that configuration should be reloaded at
// the next iteration boundary.
func (s *State) RequestConfigReload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configReload = true
}

// DrainConfigReload reports and clears the config-reload flag.
func (s *State) DrainConfigReload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	requested := s.configReload
	s.configReload = false
	return requested
}
