// Package engine implements the fix-forward state machine (C13) and
// the asynchronous worker that runs it on a goroutine (C14).
package engine

import (
	"context"
	"time"
)

// AgentStatus is the closed enum an AgentResult's status belongs to.
type AgentStatus string

const (
	AgentCompleted  AgentStatus = "completed"
	AgentInProgress AgentStatus = "in_progress"
	AgentError      AgentStatus = "error"
)

// AgentOptions carries whatever the configured provider needs beyond
// the prompt and working directory (provider name, thinking tier).
type AgentOptions struct {
	Provider string
	Thinking string
}

// AgentResult is what an AgentProvider.Execute call produces.
type AgentResult struct {
	Status  AgentStatus
	Output  string
	Message string
}

// AgentProvider is the external collaborator contract C13 invokes for
// agentic units. It returns a Result-shaped value instead of raising
// so the engine can fold a failure into the fix-forward prompt.
type AgentProvider interface {
	Execute(ctx context.Context, prompt, workingDir string, opts AgentOptions) (AgentResult, error)
}

// VcsDriver is the subset of the external VCS driver C13 and C12
// consume.
type VcsDriver interface {
	CreateWorktree(path, branch, base string) error
	RemoveWorktree(path, branch string, deleteBranch bool) error
	RollbackCommits(n int) error
	CurrentBranch() (string, error)
}

// StateTransition is one recorded {from, to, iteration} history entry.
type StateTransition struct {
	From      Phase
	To        Phase
	Iteration int
}

// Phase is the closed enum the fix-forward state machine's phase
// belongs to.
type Phase string

const (
	PhaseReady      Phase = "ready"
	PhaseApplyPatch Phase = "apply_patch"
	PhaseTest       Phase = "test"
	PhasePass       Phase = "pass"
	PhaseFail       Phase = "fail"
	PhaseDiagnose   Phase = "diagnose"
	PhaseNextPatch  Phase = "next_patch"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
)

var legalEngineTransitions = map[Phase]map[Phase]bool{
	PhaseReady:      {PhaseApplyPatch: true},
	PhaseApplyPatch: {PhaseTest: true},
	PhaseTest:       {PhasePass: true, PhaseFail: true},
	PhasePass:       {PhaseDone: true, PhaseReady: true, PhaseApplyPatch: true},
	PhaseFail:       {PhaseDiagnose: true},
	PhaseDiagnose:   {PhaseNextPatch: true},
	PhaseNextPatch:  {PhaseReady: true, PhaseApplyPatch: true},
}

// PostAgentCommand is one configured command run after an agentic
// turn, in a given phase.
type PostAgentCommand struct {
	Name    string
	Command string
	Phase   string // "each_unit" or "on_completion"
}

// CommandResultEntry is one post-agent command's outcome.
type CommandResultEntry struct {
	Name       string
	Category   string // tests, lints, formatters, builds, docs
	ExitStatus int
	Stdout     string
	Stderr     string
}

// ResultBag groups post-agent command results by category.
type ResultBag struct {
	Entries []CommandResultEntry
}

// AllSucceeded reports whether every entry in the bag exited zero.
func (b ResultBag) AllSucceeded() bool {
	for _, e := range b.Entries {
		if e.ExitStatus != 0 {
			return false
		}
	}
	return true
}

// FailuresByCategory groups failing entries by category.
func (b ResultBag) FailuresByCategory() map[string][]CommandResultEntry {
	out := map[string][]CommandResultEntry{}
	for _, e := range b.Entries {
		if e.ExitStatus != 0 {
			out[e.Category] = append(out[e.Category], e)
		}
	}
	return out
}

// StepResult is the terminal outcome returned by executeStep.
type StepResult struct {
	Status     string // "completed", "error", "cancelled"
	Iterations int
	Message    string
	Error      error
}

// CommandRunner is the minimal external command contract engine needs
// to run post-agent checks (tests/lints/formatters/builds/docs).
type CommandRunner interface {
	Run(cmd, workingDir string) (CommandOutput, error)
}

// CommandOutput is a single command invocation's outcome.
type CommandOutput struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

// Sleep abstracts time.Sleep for injection in tests.
type Sleep func(time.Duration)
