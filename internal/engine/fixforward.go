package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
	"github.com/re-cinq/aidp-loop/internal/applog"
	"github.com/re-cinq/aidp-loop/internal/checkpoint"
	"github.com/re-cinq/aidp-loop/internal/clock"
	"github.com/re-cinq/aidp-loop/internal/guard"
	"github.com/re-cinq/aidp-loop/internal/instructions"
	"github.com/re-cinq/aidp-loop/internal/ledger"
	"github.com/re-cinq/aidp-loop/internal/promptstore"
	"github.com/re-cinq/aidp-loop/internal/signals"
	"github.com/re-cinq/aidp-loop/internal/units"
	"github.com/re-cinq/aidp-loop/internal/workloop"
)

// pausePollInterval is how often ExecuteStep re-checks the phase while
// suspended, so a paused worker still reacts promptly to Cancel.
const pausePollInterval = 100 * time.Millisecond

// HarnessConfig carries the tunables executeStep consults each
// iteration.
type HarnessConfig struct {
	MaxIterations         int
	TaskCompletionRequired bool
	StyleGuideReminder     string
	StyleGuideMaxChars     int
	PostAgentCommands      []PostAgentCommand
	DeciderUnitName        string
}

// Engine is the FixForwardEngine (C13).
type Engine struct {
	state      *workloop.State
	queue      *instructions.Queue
	prompt     *promptstore.Store
	scheduler  *units.Scheduler
	unitRunner *units.Runner
	tasks      *ledger.TaskLedger
	checkpoint *checkpoint.Recorder
	guardPolicy *guard.Policy
	agent      AgentProvider
	commands   CommandRunner
	log        applog.Logger
	clock      clock.Clock

	cfg HarnessConfig

	history []StateTransition

	phaseMu sync.Mutex
	phase   Phase
}

// New builds an Engine. Every collaborator is constructor-injected;
// nothing here reaches for a global.
func New(
	state *workloop.State,
	queue *instructions.Queue,
	prompt *promptstore.Store,
	scheduler *units.Scheduler,
	unitRunner *units.Runner,
	tasks *ledger.TaskLedger,
	ckpt *checkpoint.Recorder,
	guardPolicy *guard.Policy,
	agent AgentProvider,
	commands CommandRunner,
	log applog.Logger,
	c clock.Clock,
	cfg HarnessConfig,
) *Engine {
	if log == nil {
		log = applog.Discard{}
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Engine{
		state: state, queue: queue, prompt: prompt, scheduler: scheduler,
		unitRunner: unitRunner, tasks: tasks, checkpoint: ckpt, guardPolicy: guardPolicy,
		agent: agent, commands: commands, log: log, clock: c, cfg: cfg,
		phase: PhaseReady,
	}
}

// Transition validates and records a state-machine move.
func (e *Engine) Transition(to Phase) error {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()
	allowed, ok := legalEngineTransitions[e.phase]
	if !ok || !allowed[to] {
		return &aidperr.InvalidState{From: string(e.phase), To: string(to)}
	}
	e.history = append(e.history, StateTransition{From: e.phase, To: to, Iteration: e.state.Iteration()})
	e.phase = to
	return nil
}

// History returns the recorded state transitions.
func (e *Engine) History() []StateTransition {
	return e.history
}

// CurrentPhase returns the engine's current fix-forward phase. Safe
// for concurrent use by a REPL goroutine observing the worker
// goroutine's progress.
func (e *Engine) CurrentPhase() Phase {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()
	return e.phase
}

// TaskCompletion is the result of checkTaskCompletion.
type TaskCompletion struct {
	Complete bool
	Message  string
}

// checkTaskCompletion implements the task-completion gate from §4.13.
// An empty ledger is treated as complete (the permissive variant, per
// the recorded open-question decision).
func (e *Engine) checkTaskCompletion() (TaskCompletion, error) {
	if !e.cfg.TaskCompletionRequired {
		return TaskCompletion{Complete: true}, nil
	}
	all, err := e.tasks.All(ledger.Filter{})
	if err != nil {
		return TaskCompletion{}, err
	}
	if len(all) == 0 {
		return TaskCompletion{Complete: true}, nil
	}
	var offenders []string
	for _, t := range all {
		if t.Status == ledger.StatusPending || t.Status == ledger.StatusInProgress {
			offenders = append(offenders, fmt.Sprintf("%s (%s)", t.ID, t.Status))
		}
	}
	if len(offenders) > 0 {
		return TaskCompletion{Complete: false, Message: "tasks not yet resolved: " + strings.Join(offenders, ", ")}, nil
	}
	for _, t := range all {
		if t.Status == ledger.StatusAbandoned && strings.TrimSpace(t.AbandonedReason) == "" {
			return TaskCompletion{Complete: false, Message: "Abandoned tasks require user confirmation"}, nil
		}
	}
	return TaskCompletion{Complete: true}, nil
}

// ExecuteStep runs the fix-forward loop for one step until it reaches
// a terminal state or MAX_ITERATIONS is exceeded.
func (e *Engine) ExecuteStep(ctx context.Context, stepName, workingDir string) StepResult {
	for {
		switch e.state.Phase() {
		case workloop.PhaseCancelled:
			return e.terminateCancelled(stepName)
		case workloop.PhasePaused:
			select {
			case <-ctx.Done():
				return e.terminateCancelled(stepName)
			case <-time.After(pausePollInterval):
			}
			continue
		}

		iteration := e.state.IncrementIteration()
		if iteration > e.cfg.MaxIterations {
			return e.terminateMaxIterations(stepName, iteration)
		}

		// Step 1: drain instructions.
		pending := e.queue.DequeueAll()
		if len(pending) > 0 {
			body, _ := e.prompt.Read()
			e.prompt.Write(instructions.FormatForPrompt(pending) + "\n" + body)
		}

		// Step 2: process guard/config signals from WorkLoopState.
		for k, v := range e.state.DrainGuardUpdates() {
			if e.guardPolicy != nil && !e.guardPolicy.Bypassed() {
				e.applyGuardUpdate(k, v)
			}
		}
		e.state.DrainConfigReload() // clears the flag only; the configuration is not re-read or re-validated here

		// Step 3: ask the scheduler.
		unit := e.scheduler.Next()

		if unit.Kind == units.KindDeterministic {
			res := e.unitRunner.Run(unit.Definition, units.RunOptions{})
			e.scheduler.RecordResult(res)
			e.log.Info("ran deterministic unit", "name", unit.Name, "status", res.Status)
			continue
		}

		// Agentic unit.
		done, result := e.runAgenticUnit(ctx, stepName, iteration, unit.Name, workingDir)
		if done {
			return result
		}
	}
}

func (e *Engine) applyGuardUpdate(key, value string) {
	switch key {
	case "include":
		e.guardPolicy.Include = append(e.guardPolicy.Include, value)
	case "exclude":
		e.guardPolicy.Exclude = append(e.guardPolicy.Exclude, value)
	case "confirm":
		e.guardPolicy.Confirm = append(e.guardPolicy.Confirm, value)
	}
}

func (e *Engine) runAgenticUnit(ctx context.Context, stepName string, iteration int, unitName, workingDir string) (bool, StepResult) {
	header := e.buildHeader(stepName, iteration, workingDir)
	if iteration%5 == 0 {
		header += "\n\n" + e.styleGuideReminder()
	}
	existing, _ := e.prompt.Read()
	e.prompt.Write(header + "\n\n" + existing)

	if err := e.Transition(PhaseApplyPatch); err != nil {
		e.log.Error("illegal transition", "err", err)
	}

	promptBody, _ := e.prompt.Read()
	result, err := e.agent.Execute(ctx, promptBody, workingDir, AgentOptions{})
	if err != nil {
		// Fix-forward invariant: catch once, append the exception, never
		// rethrow.
		e.appendExceptionBlock(err)
		e.log.Error("agent call failed", "err", err)
		return false, StepResult{}
	}

	filings := signals.ParseTaskFiling(result.Output)
	for _, f := range filings {
		if _, err := e.tasks.Create(f.Description, ledger.CreateOptions{
			Priority: ledger.Priority(f.Priority), Session: stepName, Tags: f.Tags,
		}); err != nil {
			e.log.Warn("task filing failed", "err", err)
		}
	}
	updates := signals.ParseTaskUpdates(result.Output)
	for _, u := range updates {
		if _, err := e.tasks.UpdateStatus(u.ID, ledger.TaskStatus(u.Status), ledger.UpdateOptions{Reason: u.Reason}); err != nil {
			e.log.Warn("task update failed", "err", err)
		}
	}
	requestedNext := signals.ExtractNextUnit(result.Output)
	e.scheduler.RecordAgentTurn(units.AgentTurn{UnitName: unitName, RequestedNext: requestedNext})
	markedComplete := signals.AgentMarkedComplete(result.Output)

	if err := e.Transition(PhaseTest); err != nil {
		e.log.Error("illegal transition", "err", err)
	}
	bag := e.runPostAgentCommands(workingDir, markedComplete)
	if entry := e.checkGuardViolation(workingDir); entry != nil {
		bag.Entries = append(bag.Entries, *entry)
	}

	if bag.AllSucceeded() {
		if err := e.Transition(PhasePass); err != nil {
			e.log.Error("illegal transition", "err", err)
		}
		if markedComplete {
			completion, err := e.checkTaskCompletion()
			if err != nil {
				e.log.Error("task completion check failed", "err", err)
			} else if completion.Complete {
				return true, e.terminateDone(stepName, iteration)
			}
			e.prompt.Write(fmt.Sprintf("## Completion blocked\n\n%s\n", completion.Message))
		}
		if err := e.Transition(PhaseReady); err != nil {
			e.log.Error("illegal transition", "err", err)
		}
		return false, StepResult{}
	}

	if err := e.Transition(PhaseFail); err != nil {
		e.log.Error("illegal transition", "err", err)
	}
	if err := e.Transition(PhaseDiagnose); err != nil {
		e.log.Error("illegal transition", "err", err)
	}
	diagnostic := e.diagnoseFailures(bag)
	if err := e.Transition(PhaseNextPatch); err != nil {
		e.log.Error("illegal transition", "err", err)
	}
	e.prepareNextIteration(iteration, bag, diagnostic)
	if err := e.Transition(PhaseReady); err != nil {
		e.log.Error("illegal transition", "err", err)
	}
	return false, StepResult{}
}

func (e *Engine) buildHeader(stepName string, iteration int, workingDir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Work Loop: %s (iteration %d)\n\n", stepName, iteration)
	fmt.Fprintf(&b, "Working directory: %s\n\n", workingDir)
	b.WriteString("Fix-forward: never roll back on failure. Write and edit code files directly.\n")
	if e.cfg.TaskCompletionRequired {
		b.WriteString("\n## Task Tracking\n\n")
		b.WriteString("File newly discovered work with `File task: \"<description>\" [priority: <enum>] [tags: a,b,c]`.\n")
		b.WriteString("Update existing work with `Update task: <id> status: <enum> [reason: \"<text>\"]`.\n")
		b.WriteString("Do not abandon tasks without a reason; abandoned tasks block completion until explained.\n")
	}
	return b.String()
}

func (e *Engine) styleGuideReminder() string {
	reminder := e.cfg.StyleGuideReminder
	if reminder == "" {
		return ""
	}
	if e.cfg.StyleGuideMaxChars > 0 && len(reminder) > e.cfg.StyleGuideMaxChars {
		return reminder[:e.cfg.StyleGuideMaxChars] + " (truncated)"
	}
	return reminder
}

func (e *Engine) appendExceptionBlock(err error) {
	body, _ := e.prompt.Read()
	block := fmt.Sprintf("\n## Fix-Forward Exception\n\nClass: %T\nMessage: %s\n\n", err, err.Error())
	e.prompt.Write(body + block)
}

// checkGuardViolation inspects the working tree's uncommitted diff
// against the guard policy and returns a failing CommandResultEntry
// when the agent's edits are disallowed. A nil guard policy or a
// bypassed one (guard.enabled: false, or AIDP_BYPASS_GUARDS set)
// skips enforcement entirely.
func (e *Engine) checkGuardViolation(workingDir string) *CommandResultEntry {
	if e.guardPolicy == nil || e.guardPolicy.Bypassed() {
		return nil
	}
	diff, err := e.diffStats(workingDir)
	if err != nil {
		e.log.Warn("guard: could not read working tree diff", "err", err)
		return nil
	}
	if len(diff.Files) == 0 {
		return nil
	}
	decision := e.guardPolicy.ValidateChanges(diff)
	if decision.Allowed {
		return nil
	}
	return &CommandResultEntry{Name: "guard", Category: "guard", ExitStatus: 1, Stderr: decision.Reason}
}

// diffStats shells out to `git diff --numstat` to summarize the
// agent's uncommitted changes against the guard policy's file-scope
// and change-size rules.
func (e *Engine) diffStats(workingDir string) (guard.DiffStats, error) {
	out, err := e.commands.Run("git diff --numstat HEAD", workingDir)
	if err != nil {
		return guard.DiffStats{}, err
	}
	var stats guard.DiffStats
	for _, line := range strings.Split(strings.TrimSpace(out.Stdout), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		adds, _ := strconv.Atoi(fields[0])
		dels, _ := strconv.Atoi(fields[1])
		stats.Additions += adds
		stats.Deletions += dels
		stats.Files = append(stats.Files, fields[2])
	}
	return stats, nil
}

func (e *Engine) runPostAgentCommands(workingDir string, onCompletion bool) ResultBag {
	var bag ResultBag
	for _, pac := range e.cfg.PostAgentCommands {
		if pac.Phase == "on_completion" && !onCompletion {
			continue
		}
		if pac.Phase != "on_completion" && pac.Phase != "each_unit" && pac.Phase != "" {
			continue
		}
		out, err := e.commands.Run(pac.Command, workingDir)
		entry := CommandResultEntry{Name: pac.Name, Category: categoryFor(pac.Name)}
		if err != nil {
			entry.ExitStatus = 1
			entry.Stderr = err.Error()
		} else {
			entry.ExitStatus = out.ExitStatus
			entry.Stdout = out.Stdout
			entry.Stderr = out.Stderr
		}
		bag.Entries = append(bag.Entries, entry)
	}
	return bag
}

func categoryFor(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "test"):
		return "tests"
	case strings.Contains(lower, "lint"):
		return "lints"
	case strings.Contains(lower, "format"):
		return "formatters"
	case strings.Contains(lower, "build"):
		return "builds"
	case strings.Contains(lower, "doc"):
		return "docs"
	default:
		return "other"
	}
}

func (e *Engine) diagnoseFailures(bag ResultBag) string {
	byCategory := bag.FailuresByCategory()
	var b strings.Builder
	b.WriteString("Failure diagnostic:\n")
	for category, entries := range byCategory {
		fmt.Fprintf(&b, "- %s: %d failing (%s)\n", category, len(entries), namesOf(entries))
	}
	return b.String()
}

func namesOf(entries []CommandResultEntry) string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return strings.Join(names, ", ")
}

func (e *Engine) prepareNextIteration(iteration int, bag ResultBag, diagnostic string) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n## Fix-Forward Iteration %d\n\n", iteration)
	b.WriteString("Fix-forward: Do not rollback. Apply the smallest change that addresses the diagnostic below.\n\n")
	b.WriteString(diagnostic)
	b.WriteString("\n### Recovery Strategy\n\n")
	for _, entry := range bag.Entries {
		if entry.ExitStatus != 0 {
			fmt.Fprintf(&b, "- rerun `%s`\n", entry.Name)
			if entry.Stdout != "" {
				fmt.Fprintf(&b, "  output: `%s`\n", truncate(entry.Stdout, 2000))
			}
			if entry.Stderr != "" {
				fmt.Fprintf(&b, "  stderr: `%s`\n", truncate(entry.Stderr, 2000))
			}
		}
	}
	if iteration%5 == 0 {
		b.WriteString("\n" + e.styleGuideReminder() + "\n")
	}
	body, _ := e.prompt.Read()
	e.prompt.Write(body + b.String())
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

func (e *Engine) terminateDone(stepName string, iteration int) StepResult {
	e.Transition(PhaseDone)
	e.recordFinalCheckpoint(stepName, iteration)
	e.prompt.Archive(stepName)
	e.prompt.Delete()
	return StepResult{Status: "completed", Iterations: iteration}
}

func (e *Engine) terminateMaxIterations(stepName string, iteration int) StepResult {
	msg := "Maximum iterations reached"
	err := fmt.Errorf("did not complete within MAX_ITERATIONS iterations")
	e.state.SetError(err)
	e.log.Error(msg, "iteration", iteration)
	e.recordFinalCheckpoint(stepName, iteration)
	e.prompt.Archive(stepName)
	e.prompt.Delete()
	return StepResult{Status: "error", Iterations: iteration, Message: msg, Error: err}
}

func (e *Engine) terminateCancelled(stepName string) StepResult {
	iteration := e.state.Iteration()
	e.recordFinalCheckpoint(stepName, iteration)
	e.prompt.Archive(stepName)
	e.prompt.Delete()
	return StepResult{Status: "cancelled", Iterations: iteration}
}

func (e *Engine) recordFinalCheckpoint(stepName string, iteration int) {
	if e.checkpoint == nil {
		return
	}
	if _, err := e.checkpoint.RecordCheckpoint(stepName, iteration, checkpoint.Metrics{}); err != nil {
		e.log.Warn("final checkpoint failed", "err", err)
	}
}
