// Package config loads and validates aidp.yml: the harness, provider,
// thinking-tier, and work-loop sections that drive the engine, the
// scheduler, and the REPL's /thinking command.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
)

// Harness carries the fix-forward engine's tunables.
type Harness struct {
	MaxIterations          int    `mapstructure:"max_iterations"`
	TaskCompletionRequired bool   `mapstructure:"task_completion_required"`
	MaxConsecutiveDeciders int    `mapstructure:"max_consecutive_deciders"`
	StyleGuideReminder     string `mapstructure:"style_guide_reminder"`
	StyleGuideEveryNIters  int    `mapstructure:"style_guide_every_n_iterations"`
	StyleGuideMaxChars     int    `mapstructure:"style_guide_max_chars"`
}

// Provider is one named external agent's invocation settings.
type Provider struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// ThinkingTier is one named reasoning-depth level available to /thinking.
type ThinkingTier struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// UnitDefinition is one work_loop.units entry.
type UnitDefinition struct {
	Name               string            `mapstructure:"name"`
	Type               string            `mapstructure:"type"`
	Command            string            `mapstructure:"command"`
	OutputFile         string            `mapstructure:"output_file"`
	MinIntervalSeconds int               `mapstructure:"min_interval_seconds"`
	Next               map[string]string `mapstructure:"next"`
}

// WorkLoopDefaults names the scheduler's fallback agentic unit and its
// no-next-step substitute.
type WorkLoopDefaults struct {
	FallbackAgentic string `mapstructure:"fallback_agentic"`
	OnNoNextStep    string `mapstructure:"on_no_next_step"`
}

// WorkLoop carries the unit graph and scheduler defaults.
type WorkLoop struct {
	Units            []UnitDefinition  `mapstructure:"units"`
	Defaults         WorkLoopDefaults  `mapstructure:"defaults"`
	InitialUnitsFile string            `mapstructure:"initial_units_file"`
}

// Guard carries the default guard-policy pattern sets.
type Guard struct {
	Include           []string `mapstructure:"include"`
	Exclude           []string `mapstructure:"exclude"`
	Confirm           []string `mapstructure:"confirm"`
	MaxLinesPerCommit int      `mapstructure:"max_lines_per_commit"`
	Enabled           bool     `mapstructure:"enabled"`
}

// Config is aidp.yml unmarshaled.
type Config struct {
	Harness       Harness             `mapstructure:"harness"`
	Providers     map[string]Provider `mapstructure:"providers"`
	Thinking      []ThinkingTier      `mapstructure:"thinking"`
	WorkLoop      WorkLoop            `mapstructure:"work_loop"`
	Guard         Guard               `mapstructure:"guard"`
	DefaultBranch string              `mapstructure:"default_branch"`
}

// Loader owns the viper instance and watch wiring for one aidp.yml.
type Loader struct {
	v          *viper.Viper
	configFile string
	mu         sync.Mutex
}

// NewLoader builds a Loader bound to configFile.
func NewLoader(configFile string) *Loader {
	l := &Loader{v: viper.New(), configFile: configFile}
	l.setDefaults()
	l.v.SetEnvPrefix("AIDP")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	return l
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("harness.max_iterations", 50)
	l.v.SetDefault("harness.task_completion_required", true)
	l.v.SetDefault("harness.max_consecutive_deciders", 3)
	l.v.SetDefault("harness.style_guide_every_n_iterations", 5)
	l.v.SetDefault("harness.style_guide_max_chars", 4000)
	l.v.SetDefault("work_loop.initial_units_file", ".aidp/work_loop/initial_units.txt")
	l.v.SetDefault("guard.enabled", true)
	l.v.SetDefault("guard.max_lines_per_commit", 0)
	l.v.SetDefault("default_branch", "main")
}

// Load reads configFile (if it exists), applies env overrides, and
// unmarshals into a Config. A missing file is not an error; it loads
// defaults only.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.v.SetConfigFile(l.configFile)
	l.v.SetConfigType("yaml")
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, &aidperr.ConfigError{Message: fmt.Sprintf("reading %s: %v", l.configFile, err)}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, &aidperr.ConfigError{Message: fmt.Sprintf("unmarshaling %s: %v", l.configFile, err)}
	}
	return &cfg, nil
}

// Watch starts an fsnotify watch on configFile and invokes onChange
// every time it is rewritten. onChange is typically
// workloop.State.RequestConfigReload.
func (l *Loader) Watch(onChange func()) {
	l.v.OnConfigChange(func(fsnotify.Event) { onChange() })
	l.v.WatchConfig()
}

// Validate mirrors the teacher's validation-errors-as-slice idiom:
// required fields, duplicate unit names, and cycle detection over the
// work_loop.units "next" graph.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Harness.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("harness.max_iterations must be positive"))
	}
	if cfg.WorkLoop.Defaults.FallbackAgentic == "" {
		errs = append(errs, fmt.Errorf("work_loop.defaults.fallback_agentic is required"))
	}

	seen := make(map[string]bool, len(cfg.WorkLoop.Units))
	for _, u := range cfg.WorkLoop.Units {
		if u.Name == "" {
			errs = append(errs, fmt.Errorf("work_loop.units entry missing name"))
			continue
		}
		if seen[u.Name] {
			errs = append(errs, fmt.Errorf("work_loop.units: duplicate unit name %q", u.Name))
		}
		seen[u.Name] = true
		if u.Type != "command" && u.Type != "wait" {
			errs = append(errs, fmt.Errorf("work_loop.units[%s]: unknown type %q", u.Name, u.Type))
		}
	}
	if cyc := findCycle(cfg.WorkLoop.Units); cyc != "" {
		errs = append(errs, fmt.Errorf("work_loop.units: cycle detected through %s", cyc))
	}

	for name, p := range cfg.Providers {
		if p.Command == "" {
			errs = append(errs, fmt.Errorf("providers.%s.command is required", name))
		}
	}

	return errs
}

// findCycle walks the deterministic-unit "next" graph looking for a
// cycle reachable entirely through deterministic units (an agentic
// hand-off breaks the chain, since the scheduler always returns control
// to the decider).
func findCycle(units []UnitDefinition) string {
	byName := make(map[string]UnitDefinition, len(units))
	for _, u := range units {
		byName[u.Name] = u
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(units))
	var visit func(name string) string
	visit = func(name string) string {
		u, ok := byName[name]
		if !ok {
			return ""
		}
		color[name] = gray
		for _, next := range u.Next {
			switch color[next] {
			case gray:
				return next
			case white:
				if cyc := visit(next); cyc != "" {
					return cyc
				}
			}
		}
		color[name] = black
		return ""
	}
	for _, u := range units {
		if color[u.Name] == white {
			if cyc := visit(u.Name); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}
