// Package shell implements the interactive REPL front end: a
// chzyer/readline prompt that parses slash commands via replmacro and
// drives the engine's AsyncRunner, with two-stage Ctrl-C handling
// (first press warns, second quits; a task in flight is cancelled
// cooperatively rather than the process being killed).
package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/re-cinq/aidp-loop/internal/applog"
	"github.com/re-cinq/aidp-loop/internal/engine"
	"github.com/re-cinq/aidp-loop/internal/instructions"
	"github.com/re-cinq/aidp-loop/internal/replmacro"
	"github.com/re-cinq/aidp-loop/internal/workloop"
	"github.com/re-cinq/aidp-loop/internal/workstream"
)

// VcsDriver is the subset of vcsgit.Driver the shell needs for
// /rollback and /undo.
type VcsDriver interface {
	RollbackCommits(n int) error
	CurrentBranch() (string, error)
}

// WorkstreamManager is the subset of workstream.Manager the shell
// needs for /ws.
type WorkstreamManager interface {
	Create(slug, baseBranch string) (workstream.Workstream, error)
	Remove(slug string, deleteBranch bool) error
	List() []workstream.Workstream
	Info(slug string) (workstream.Workstream, error)
}

// commandNames is the closed set of slash commands, used for tab
// completion.
var commandNames = []string{
	"/pin", "/unpin", "/focus", "/unfocus", "/halt-on", "/unhalt",
	"/split", "/pause", "/resume", "/cancel", "/inject", "/merge",
	"/update", "/reload", "/rollback", "/undo", "/ws", "/skill",
	"/tools", "/thinking", "/status", "/reset", "/help",
}

// Shell owns the readline loop and the session state replmacro reads
// and mutates.
type Shell struct {
	runner   *engine.AsyncRunner
	vcs      VcsDriver
	ws       WorkstreamManager
	session  *replmacro.Session
	cacheDir string
	log      applog.Logger

	defaultBranch string
	stepName      string
	workingDir    string
}

// New builds a Shell. thinkingTiers seeds the session's known tier
// names for /thinking validation.
func New(runner *engine.AsyncRunner, vcs VcsDriver, ws WorkstreamManager, defaultBranch string, thinkingTiers []string, cacheDir, stepName, workingDir string, log applog.Logger) *Shell {
	if log == nil {
		log = applog.Discard{}
	}
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	return &Shell{
		runner:        runner,
		vcs:           vcs,
		ws:            ws,
		session:       replmacro.NewSession(thinkingTiers),
		cacheDir:      cacheDir,
		log:           log,
		defaultBranch: defaultBranch,
		stepName:      stepName,
		workingDir:    workingDir,
	}
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, len(commandNames))
	for i, name := range commandNames {
		items[i] = readline.PcItem(name)
	}
	return readline.NewPrefixCompleter(items...)
}

// Run starts the interactive loop. It returns when the user exits
// (exit/quit/Ctrl-D) or a double Ctrl-C fires while idle.
func (s *Shell) Run() error {
	fmt.Println("aidp work-loop shell — /help for commands, exit or Ctrl-D to quit")

	if !s.runner.Running() {
		if err := s.runner.ExecuteStepAsync(s.stepName, s.workingDir); err != nil {
			return fmt.Errorf("starting step %q: %w", s.stepName, err)
		}
	}

	_ = os.MkdirAll(s.cacheDir, 0o755)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "\033[36maidp>\033[0m ",
		HistoryFile:       filepath.Join(s.cacheDir, "history"),
		HistorySearchFold: true,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		AutoComplete:      completer(),
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer rl.Close()

	for {
		s.drainOutput()

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if s.runner.Running() {
				if cerr := s.runner.Cancel(); cerr != nil {
					s.log.Warn("cancel failed", "err", cerr)
				}
				fmt.Println("\033[33m! step cancelled\033[0m")
				continue
			}
			fmt.Println("\033[2m(Ctrl+C again or type 'exit' to quit)\033[0m")
			line2, err2 := rl.Readline()
			if err2 == readline.ErrInterrupt || strings.TrimSpace(line2) == "exit" || strings.TrimSpace(line2) == "quit" {
				return nil
			}
			line, err = line2, err2
		}
		if err != nil {
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}

		s.dispatch(input)
	}
}

func (s *Shell) dispatch(input string) {
	if !strings.HasPrefix(input, "/") {
		if s.runner.Running() {
			if _, err := s.runner.EnqueueInstruction(input, instructions.TypeUserInput, instructions.PriorityNormal); err != nil {
				fmt.Printf("error: %v\n", err)
			}
			return
		}
		fmt.Println("no step is running; prefix commands with / or start a step first")
		return
	}

	result := replmacro.Parse(s.session, input)
	if !result.Success {
		fmt.Printf("\033[31m%s\033[0m\n", result.Message)
		return
	}
	fmt.Println(result.Message)

	switch result.Action {
	case replmacro.ActionPauseWorkLoop:
		if err := s.runner.Pause(); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case replmacro.ActionResumeWorkLoop:
		if err := s.runner.Resume(); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case replmacro.ActionCancelWorkLoop:
		if err := s.runner.Cancel(); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case replmacro.ActionEnqueueInstr:
		content, _ := result.Data["content"].(string)
		typ, _ := result.Data["type"].(string)
		priority, _ := result.Data["priority"].(string)
		if _, err := s.runner.EnqueueInstruction(content, instructionType(typ), instructionPriority(priority)); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case replmacro.ActionUpdateGuard:
		key, _ := result.Data["key"].(string)
		value, _ := result.Data["value"].(string)
		s.runner.RequestGuardUpdate(key, value)
	case replmacro.ActionReloadConfig:
		s.runner.RequestConfigReload()
	case replmacro.ActionRollbackCommits:
		s.rollback(result.Data)
	case replmacro.ActionWorkstream:
		s.workstream(result.Data)
	case replmacro.ActionStatus:
		fmt.Printf("phase: %s%s%s\n", phaseColor(s.runner.EnginePhase()), s.runner.EnginePhase(), ansiReset)
	}
}

// rollback handles ActionRollbackCommits, refusing to rewrite history
// on the default branch per the REPL macro contract.
func (s *Shell) rollback(data map[string]any) {
	if s.vcs == nil {
		fmt.Println("error: rollback is unavailable")
		return
	}
	count, _ := data["count"].(int)
	if count <= 0 {
		count = 1
	}
	branch, err := s.vcs.CurrentBranch()
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if branch == s.defaultBranch {
		fmt.Printf("refusing to rollback on the default branch (%s)\n", s.defaultBranch)
		return
	}
	if err := s.vcs.RollbackCommits(count); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("rolled back %d commit(s) on %s\n", count, branch)
}

// workstream handles ActionWorkstream, dispatching to the manager by
// the sub-operation replmacro already validated.
func (s *Shell) workstream(data map[string]any) {
	if s.ws == nil {
		fmt.Println("error: workstreams are unavailable")
		return
	}
	op, _ := data["op"].(string)
	slug, _ := data["slug"].(string)

	switch op {
	case "list":
		entries := s.ws.List()
		if len(entries) == 0 {
			fmt.Println("no workstreams")
			return
		}
		for _, ws := range entries {
			fmt.Printf("%s\t%s\t%s\n", ws.Slug, ws.Branch, ws.Path)
		}
	case "status":
		if s.session.CurrentWorkstream == "" {
			fmt.Println("no workstream selected")
			return
		}
		ws, err := s.ws.Info(s.session.CurrentWorkstream)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("%s\t%s\t%s\n", ws.Slug, ws.Branch, ws.Path)
	case "new":
		ws, err := s.ws.Create(slug, "")
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("created %s at %s\n", ws.Slug, ws.Path)
	case "switch":
		ws, err := s.ws.Info(slug)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println(ws.Path)
	case "rm":
		if err := s.ws.Remove(slug, false); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case "pause":
		// No backing manager operation; acknowledged via result.Message.
	}
}

// instructionType maps a replmacro-computed type string to the
// instructions enum, defaulting to user input for anything unrecognized.
func instructionType(t string) instructions.Type {
	switch t {
	case string(instructions.TypePlanUpdate):
		return instructions.TypePlanUpdate
	case string(instructions.TypeConstraint):
		return instructions.TypeConstraint
	case string(instructions.TypeClarification):
		return instructions.TypeClarification
	case string(instructions.TypeAcceptance):
		return instructions.TypeAcceptance
	default:
		return instructions.TypeUserInput
	}
}

// instructionPriority maps a replmacro-computed priority string to the
// instructions enum, defaulting to normal for anything unrecognized.
func instructionPriority(p string) instructions.Priority {
	switch p {
	case "critical":
		return instructions.PriorityCritical
	case "high":
		return instructions.PriorityHigh
	case "low":
		return instructions.PriorityLow
	default:
		return instructions.PriorityNormal
	}
}

// phaseColor picks an ANSI color for a fix-forward phase, matching the
// palette used by the status command.
func phaseColor(phase engine.Phase) string {
	switch phase {
	case engine.PhasePass, engine.PhaseDone:
		return ansiGreen
	case engine.PhaseFail, engine.PhaseDiagnose, engine.PhaseError:
		return ansiRed
	default:
		return ansiYellow
	}
}

const (
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiReset  = "\033[0m"
)

func (s *Shell) drainOutput() {
	for _, entry := range s.runner.DrainOutput() {
		s.printOutput(entry)
	}
}

func (s *Shell) printOutput(entry workloop.OutputEntry) {
	fmt.Printf("\033[2m[%s]\033[0m %s\n", entry.Type, entry.Message)
}
