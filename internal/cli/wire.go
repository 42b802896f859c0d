package cli

import (
	"os"
	"path/filepath"

	"github.com/re-cinq/aidp-loop/internal/agentproc"
	"github.com/re-cinq/aidp-loop/internal/applog"
	"github.com/re-cinq/aidp-loop/internal/checkpoint"
	"github.com/re-cinq/aidp-loop/internal/clock"
	"github.com/re-cinq/aidp-loop/internal/cmdrunner"
	"github.com/re-cinq/aidp-loop/internal/config"
	"github.com/re-cinq/aidp-loop/internal/engine"
	"github.com/re-cinq/aidp-loop/internal/fileutil"
	"github.com/re-cinq/aidp-loop/internal/guard"
	"github.com/re-cinq/aidp-loop/internal/instructions"
	"github.com/re-cinq/aidp-loop/internal/ledger"
	"github.com/re-cinq/aidp-loop/internal/promptstore"
	"github.com/re-cinq/aidp-loop/internal/units"
	"github.com/re-cinq/aidp-loop/internal/vcsgit"
	"github.com/re-cinq/aidp-loop/internal/workloop"
	"github.com/re-cinq/aidp-loop/internal/workstream"
)

// engineCommandRunner adapts cmdrunner.Runner to engine.CommandRunner.
type engineCommandRunner struct{ r *cmdrunner.Runner }

func (a engineCommandRunner) Run(cmd, workingDir string) (engine.CommandOutput, error) {
	out, err := a.r.Run(cmd, workingDir)
	return engine.CommandOutput{ExitStatus: out.ExitStatus, Stdout: out.Stdout, Stderr: out.Stderr}, err
}

// unitsCommandRunner adapts cmdrunner.Runner to units.CommandRunner.
type unitsCommandRunner struct{ r *cmdrunner.Runner }

func (a unitsCommandRunner) Run(cmd, workingDir string) (units.CommandResult, error) {
	out, err := a.r.Run(cmd, workingDir)
	return units.CommandResult{ExitStatus: out.ExitStatus, Stdout: out.Stdout, Stderr: out.Stderr}, err
}

// harness bundles every collaborator one config file produces, so
// run/repl/status/tasks share a single wiring path.
type harness struct {
	cfg     *config.Config
	repoDir string
	loader  *config.Loader

	state *workloop.State
	queue *instructions.Queue
	eng   *engine.Engine
	async *engine.AsyncRunner
	tasks *ledger.TaskLedger
	ckpt  *checkpoint.Recorder
	vcs   *vcsgit.Driver
	ws    *workstream.Manager
	log   applog.Logger
}

// buildHarness loads and validates configPath, then constructs every
// engine collaborator against the git repository that owns it.
func buildHarness(configPath string) (*harness, error) {
	cfg, err := loadAndValidateConfig(configPath)
	if err != nil {
		return nil, err
	}
	repoDir, err := resolveRepo(configPath)
	if err != nil {
		return nil, err
	}

	log := applog.NewLogrus(os.Stderr, logLevel, logFormat)
	c := clock.Real{}

	state := workloop.New(c)
	queue := instructions.New(c)
	prompt := promptstore.New(repoDir, c)
	ckpt := checkpoint.New(repoDir, c)
	guardPolicy := guard.New(cfg.Guard.Include, cfg.Guard.Exclude, cfg.Guard.Confirm, cfg.Guard.MaxLinesPerCommit, cfg.Guard.Enabled)
	vcs := vcsgit.NewDriver(repoDir)
	ws := workstream.New(repoDir, vcs, c, log)

	ledgerPath := filepath.Join(repoDir, ".aidp", "tasks.jsonl")
	appendLog, err := ledger.NewAppendOnlyLog(ledgerPath, log)
	if err != nil {
		return nil, err
	}
	tasks, err := ledger.NewTaskLedger(appendLog, c)
	if err != nil {
		return nil, err
	}

	unitDefs := make([]units.Definition, 0, len(cfg.WorkLoop.Units))
	for _, u := range cfg.WorkLoop.Units {
		unitDefs = append(unitDefs, units.Definition{
			Name:               u.Name,
			Type:               units.DefinitionType(u.Type),
			Command:            u.Command,
			OutputFile:         u.OutputFile,
			MinIntervalSeconds: u.MinIntervalSeconds,
			Next:               u.Next,
		})
	}
	defaults := units.Defaults{
		FallbackAgentic: cfg.WorkLoop.Defaults.FallbackAgentic,
		OnNoNextStep:    cfg.WorkLoop.Defaults.OnNoNextStep,
	}
	initialUnitsPath := cfg.WorkLoop.InitialUnitsFile
	if initialUnitsPath != "" && !filepath.IsAbs(initialUnitsPath) {
		initialUnitsPath = filepath.Join(repoDir, initialUnitsPath)
	}
	scheduler := units.NewScheduler(unitDefs, defaults, cfg.Harness.MaxConsecutiveDeciders, c, initialUnitsPath)

	runner := cmdrunner.New()
	unitRunner := units.NewRunner(unitsCommandRunner{runner}, repoDir, c)

	providers := make(map[string][]string, len(cfg.Providers))
	for name, p := range cfg.Providers {
		providers[name] = append([]string{p.Command}, p.Args...)
	}
	agentLogDir := fileutil.AidpSubdir(repoDir, "agent-logs")
	agent := agentproc.New(providers, agentLogDir, func(line string) { state.AppendOutput(line, "agent") }, log)

	var postAgent []engine.PostAgentCommand
	for _, u := range cfg.WorkLoop.Units {
		if u.Type == "command" {
			postAgent = append(postAgent, engine.PostAgentCommand{Name: u.Name, Command: u.Command, Phase: "each_unit"})
		}
	}

	harnessCfg := engine.HarnessConfig{
		MaxIterations:          cfg.Harness.MaxIterations,
		TaskCompletionRequired: cfg.Harness.TaskCompletionRequired,
		StyleGuideReminder:     cfg.Harness.StyleGuideReminder,
		StyleGuideMaxChars:     cfg.Harness.StyleGuideMaxChars,
		PostAgentCommands:      postAgent,
		DeciderUnitName:        cfg.WorkLoop.Defaults.FallbackAgentic,
	}

	eng := engine.New(state, queue, prompt, scheduler, unitRunner, tasks, ckpt, guardPolicy, agent, engineCommandRunner{runner}, log, c, harnessCfg)
	async := engine.NewAsyncRunner(eng, state, queue, log)

	loader := config.NewLoader(configPath)
	loader.Watch(func() { state.RequestConfigReload() })

	return &harness{
		cfg: cfg, repoDir: repoDir, loader: loader,
		state: state, queue: queue, eng: eng, async: async,
		tasks: tasks, ckpt: ckpt, vcs: vcs, ws: ws, log: log,
	}, nil
}
