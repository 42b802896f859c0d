package units

import (
	"bufio"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/re-cinq/aidp-loop/internal/clock"
)

// Kind distinguishes an agentic Unit from a deterministic one.
type Kind string

const (
	KindAgentic       Kind = "agentic"
	KindDeterministic Kind = "deterministic"
)

// Unit is the scheduler's output: either a named agentic turn or a
// deterministic definition to run.
type Unit struct {
	Kind       Kind
	Name       string
	Definition Definition
}

// Defaults carries the scheduler's configured fallback unit names.
type Defaults struct {
	FallbackAgentic string // the decider's name, e.g. "decide_whats_next"
	OnNoNextStep    string // typically a wait unit
}

// AgentTurn is the outcome the scheduler consults after an agentic
// unit ran.
type AgentTurn struct {
	UnitName      string
	RequestedNext string
}

// Scheduler is the UnitScheduler (C7).
type Scheduler struct {
	definitions map[string]Definition
	defaults    Defaults
	maxDeciders int
	clock       clock.Clock

	mu                  sync.Mutex
	lastFinished        map[string]time.Time
	lastWasAgentic      bool
	lastAgentTurn       AgentTurn
	lastDeterministic   Result
	haveLastDet         bool
	consecutiveDeciders int
	initialQueue        []string
}

// NewScheduler builds a Scheduler over definitions, with the given
// defaults and decider cap. initialUnitsPath, if it exists, is read
// once at construction into the initial-unit queue
// (.aidp/work_loop/initial_units.txt).
func NewScheduler(definitions []Definition, defaults Defaults, maxConsecutiveDeciders int, c clock.Clock, initialUnitsPath string) *Scheduler {
	if c == nil {
		c = clock.Real{}
	}
	defs := make(map[string]Definition, len(definitions))
	for _, d := range definitions {
		defs[d.Name] = d
	}
	s := &Scheduler{
		definitions:  defs,
		defaults:     defaults,
		maxDeciders:  maxConsecutiveDeciders,
		clock:        c,
		lastFinished: make(map[string]time.Time),
	}
	s.initialQueue = loadInitialUnits(initialUnitsPath)
	return s
}

func loadInitialUnits(path string) []string {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// cooldownElapsed reports whether a deterministic unit's cooldown has
// passed since it last finished.
func (s *Scheduler) cooldownElapsed(name string, minIntervalSeconds int) bool {
	last, ok := s.lastFinished[name]
	if !ok {
		return true
	}
	return s.clock.Now().Sub(last).Seconds() >= float64(minIntervalSeconds)
}

// Next implements the four-step decision algorithm from §4.7.
func (s *Scheduler) Next() Unit {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Step 1: drain the initial-unit queue first.
	if len(s.initialQueue) > 0 {
		name := s.initialQueue[0]
		s.initialQueue = s.initialQueue[1:]
		return s.unitFor(name)
	}

	// Step 2: previous agentic turn requested a specific next unit.
	if s.lastWasAgentic && s.lastAgentTurn.RequestedNext != "" {
		name := s.lastAgentTurn.RequestedNext
		if def, ok := s.definitions[name]; ok && s.cooldownElapsed(name, def.MinIntervalSeconds) {
			return Unit{Kind: KindDeterministic, Name: name, Definition: def}
		}
		return s.agenticUnit(s.defaults.FallbackAgentic)
	}

	// Step 3: previous was deterministic — consult its next map.
	if s.haveLastDet {
		def := s.definitions[s.lastDeterministic.Name]
		if name, ok := def.NextFor(s.lastDeterministic.Status); ok {
			return s.unitFor(name)
		}
	}

	// Step 4: default to the agentic primary unit.
	return s.agenticUnit(s.defaults.FallbackAgentic)
}

// unitFor resolves name to a deterministic definition if known,
// otherwise treats it as an agentic unit name.
func (s *Scheduler) unitFor(name string) Unit {
	if def, ok := s.definitions[name]; ok {
		return Unit{Kind: KindDeterministic, Name: name, Definition: def}
	}
	return s.agenticUnit(name)
}

// agenticUnit applies the decider-cap safeguard: after maxDeciders
// consecutive decider turns (name == defaults.FallbackAgentic), the
// scheduler substitutes defaults.OnNoNextStep until a deterministic
// unit runs again. The cap is suspended while the initial-unit queue
// is still draining.
func (s *Scheduler) agenticUnit(name string) Unit {
	isDecider := name == s.defaults.FallbackAgentic
	if isDecider && len(s.initialQueue) == 0 {
		s.consecutiveDeciders++
		if s.maxDeciders > 0 && s.consecutiveDeciders > s.maxDeciders {
			if def, ok := s.definitions[s.defaults.OnNoNextStep]; ok {
				return Unit{Kind: KindDeterministic, Name: def.Name, Definition: def}
			}
		}
	} else {
		s.consecutiveDeciders = 0
	}
	return Unit{Kind: KindAgentic, Name: name}
}

// RecordAgentTurn feeds an agentic unit's outcome back to the
// scheduler.
func (s *Scheduler) RecordAgentTurn(turn AgentTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastWasAgentic = true
	s.lastAgentTurn = turn
	s.haveLastDet = false
}

// RecordResult feeds a deterministic unit's result back to the
// scheduler and records its cooldown timestamp.
func (s *Scheduler) RecordResult(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastWasAgentic = false
	s.lastDeterministic = res
	s.haveLastDet = true
	s.lastFinished[res.Name] = res.FinishedAt
	s.consecutiveDeciders = 0
}

// DeterministicContext returns the tail of recent results, useful for
// prompt templating. Only the most recently recorded result is
// tracked; callers needing a longer history should consult the unit's
// own outputFile artifacts.
func (s *Scheduler) DeterministicContext() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDeterministic, s.haveLastDet
}

// LastAgenticSummary returns the most recently recorded agentic turn.
func (s *Scheduler) LastAgenticSummary() (AgentTurn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAgentTurn, s.lastWasAgentic
}
