// Package replmacro parses slash-command input into structured
// actions and maintains the session-level constraints (pinned paths,
// focus pattern, halt patterns, split mode, thinking tier) those
// commands mutate.
package replmacro

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ActionKind is the closed set of actions a macro execution may
// produce.
type ActionKind string

const (
	ActionUpdateConstraints ActionKind = "update_constraints"
	ActionSplitWork         ActionKind = "split_work"
	ActionPauseWorkLoop     ActionKind = "pause_work_loop"
	ActionResumeWorkLoop    ActionKind = "resume_work_loop"
	ActionCancelWorkLoop    ActionKind = "cancel_work_loop"
	ActionEnqueueInstr      ActionKind = "enqueue_instruction"
	ActionUpdateGuard       ActionKind = "update_guard"
	ActionReloadConfig      ActionKind = "reload_config"
	ActionRollbackCommits   ActionKind = "rollback_commits"
	ActionWorkstream        ActionKind = "workstream"
	ActionSkill             ActionKind = "skill"
	ActionTools             ActionKind = "tools"
	ActionThinking          ActionKind = "thinking"
	ActionStatus            ActionKind = "status"
	ActionReset             ActionKind = "reset"
	ActionHelp              ActionKind = "help"
)

// Result is what every macro execution returns.
type Result struct {
	Success bool
	Message string
	Action  ActionKind
	Data    map[string]any
}

func fail(message string) Result { return Result{Success: false, Message: message} }

func ok(action ActionKind, message string, data map[string]any) Result {
	return Result{Success: true, Message: message, Action: action, Data: data}
}

// Session holds the mutable macro state for one REPL session: pinned
// paths, focus/halt patterns, split-mode, thinking tier, and the
// current workstream pointer subsequent commands act against.
type Session struct {
	Pinned   []string
	Focus    []string
	Halt     []string
	Split    bool

	ThinkingTiers []string
	ThinkingTier  string
	ThinkingMax   string

	CurrentWorkstream string
}

// NewSession builds an empty Session. thinkingTiers is the configured
// closed set /thinking may select from.
func NewSession(thinkingTiers []string) *Session {
	return &Session{ThinkingTiers: thinkingTiers}
}

var wsSlugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Parse interprets one line of REPL input beginning with "/" and
// applies it to sess, returning the structured result. Unknown
// commands, empty input, and malformed arguments fail with a usage
// message rather than raising.
func Parse(sess *Session, line string) Result {
	line = strings.TrimSpace(line)
	if line == "" {
		return fail("empty input")
	}
	if !strings.HasPrefix(line, "/") {
		return fail("macro commands must start with /")
	}
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/pin":
		return pin(sess, args)
	case "/unpin":
		return unpin(sess, args)
	case "/focus":
		return focus(sess, args)
	case "/unfocus":
		return unfocus(sess)
	case "/halt-on":
		return haltOn(sess, line)
	case "/unhalt":
		return unhalt(sess, args)
	case "/split":
		sess.Split = !sess.Split
		return ok(ActionSplitWork, fmt.Sprintf("split mode: %v", sess.Split), map[string]any{"split": sess.Split})
	case "/pause":
		return ok(ActionPauseWorkLoop, "pausing work loop", nil)
	case "/resume":
		return ok(ActionResumeWorkLoop, "resuming work loop", nil)
	case "/cancel":
		return cancel(args)
	case "/inject":
		return inject(line, args)
	case "/merge":
		return merge(line)
	case "/update":
		return update(args)
	case "/reload":
		return reload(args)
	case "/rollback":
		return rollback(args)
	case "/undo":
		return undo(args)
	case "/ws":
		return workstream(sess, args)
	case "/skill":
		return skill(args)
	case "/tools":
		return tools(args)
	case "/thinking":
		return thinking(sess, args)
	case "/status":
		return ok(ActionStatus, "status", nil)
	case "/reset":
		*sess = Session{ThinkingTiers: sess.ThinkingTiers}
		return ok(ActionReset, "macro state reset", nil)
	case "/help":
		return help(args)
	default:
		return fail("unknown command: " + cmd + " (try /help)")
	}
}

func pin(sess *Session, args []string) Result {
	if len(args) == 0 {
		return fail("usage: /pin <pattern...>")
	}
	for _, p := range args {
		sess.Pinned = append(sess.Pinned, normalizePath(p))
	}
	return ok(ActionUpdateConstraints, "pinned "+strings.Join(args, ", "), map[string]any{"pinned": sess.Pinned})
}

func unpin(sess *Session, args []string) Result {
	if len(args) == 0 {
		return fail("usage: /unpin <pattern...>")
	}
	removed := false
	for _, p := range args {
		norm := normalizePath(p)
		for i, existing := range sess.Pinned {
			if existing == norm {
				sess.Pinned = append(sess.Pinned[:i], sess.Pinned[i+1:]...)
				removed = true
				break
			}
		}
	}
	if !removed {
		return fail("no matching pinned paths found")
	}
	return ok(ActionUpdateConstraints, "unpinned "+strings.Join(args, ", "), map[string]any{"pinned": sess.Pinned})
}

func focus(sess *Session, args []string) Result {
	if len(args) != 1 {
		return fail("usage: /focus <pattern>")
	}
	sess.Focus = append(sess.Focus, args[0])
	return ok(ActionUpdateConstraints, "focus: "+args[0], map[string]any{"focus": sess.Focus})
}

func unfocus(sess *Session) Result {
	sess.Focus = nil
	return ok(ActionUpdateConstraints, "focus cleared", nil)
}

func haltOn(sess *Session, line string) Result {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "/halt-on"))
	pattern := strings.Trim(rest, `"`)
	if pattern == "" {
		return fail(`usage: /halt-on "<regex>"`)
	}
	if _, err := regexp.Compile("(?i)" + pattern); err != nil {
		return fail("invalid regex: " + err.Error())
	}
	sess.Halt = append(sess.Halt, pattern)
	return ok(ActionUpdateConstraints, "halt-on: "+pattern, map[string]any{"halt": sess.Halt})
}

func unhalt(sess *Session, args []string) Result {
	if len(args) == 0 {
		sess.Halt = nil
		return ok(ActionUpdateConstraints, "all halt patterns removed", nil)
	}
	pattern := strings.Trim(strings.Join(args, " "), `"`)
	for i, p := range sess.Halt {
		if p == pattern {
			sess.Halt = append(sess.Halt[:i], sess.Halt[i+1:]...)
			return ok(ActionUpdateConstraints, "halt pattern removed", map[string]any{"halt": sess.Halt})
		}
	}
	return fail("halt pattern not found: " + pattern)
}

func cancel(args []string) Result {
	saveCheckpoint := true
	for _, a := range args {
		if a == "--no-checkpoint" {
			saveCheckpoint = false
		}
	}
	return ok(ActionCancelWorkLoop, "cancelling work loop", map[string]any{"saveCheckpoint": saveCheckpoint})
}

func inject(line string, args []string) Result {
	priority := "normal"
	var textFields []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--priority" && i+1 < len(args) {
			priority = args[i+1]
			i++
			continue
		}
		textFields = append(textFields, args[i])
	}
	text := strings.Join(textFields, " ")
	if text == "" {
		return fail("usage: /inject <text> [--priority {critical,high,normal,low}]")
	}
	switch priority {
	case "critical", "high", "normal", "low":
	default:
		return fail("invalid priority: " + priority)
	}
	return ok(ActionEnqueueInstr, "instruction queued", map[string]any{
		"content": text, "type": "user_input", "priority": priority,
	})
}

func merge(line string) Result {
	text := strings.TrimSpace(strings.TrimPrefix(line, "/merge"))
	if text == "" {
		return fail("usage: /merge <text>")
	}
	return ok(ActionEnqueueInstr, "plan update queued", map[string]any{
		"content": text, "type": "plan_update", "priority": "high",
	})
}

func update(args []string) Result {
	if len(args) < 2 || args[0] != "guard" {
		return fail("usage: /update guard <key>=<value>")
	}
	kv := strings.SplitN(args[1], "=", 2)
	if len(kv) != 2 || kv[0] == "" {
		return fail("usage: /update guard <key>=<value>")
	}
	return ok(ActionUpdateGuard, "guard update queued", map[string]any{"key": kv[0], "value": kv[1]})
}

func reload(args []string) Result {
	if len(args) != 1 || args[0] != "config" {
		return fail("usage: /reload config")
	}
	return ok(ActionReloadConfig, "config reload requested", nil)
}

func rollback(args []string) Result {
	if len(args) != 1 {
		return fail("usage: /rollback <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return fail("rollback count must be a positive integer")
	}
	return ok(ActionRollbackCommits, fmt.Sprintf("rolling back %d commits", n), map[string]any{"count": n})
}

func undo(args []string) Result {
	if len(args) != 1 || args[0] != "last" {
		return fail("usage: /undo last")
	}
	return ok(ActionRollbackCommits, "rolling back last commit", map[string]any{"count": 1})
}

func workstream(sess *Session, args []string) Result {
	if len(args) == 0 {
		return fail("usage: /ws list|new|switch|rm|status|pause [opts]")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list", "status":
		return ok(ActionWorkstream, "ws "+sub, map[string]any{"op": sub})
	case "new", "switch", "rm", "pause":
		if len(rest) == 0 {
			return fail("usage: /ws " + sub + " <slug>")
		}
		slug := rest[0]
		if !wsSlugRe.MatchString(slug) {
			return fail("invalid workstream slug: " + slug)
		}
		if sub == "rm" && slug == sess.CurrentWorkstream {
			return fail("cannot remove the current workstream")
		}
		data := map[string]any{"op": sub, "slug": slug}
		if sub == "switch" {
			sess.CurrentWorkstream = slug
		}
		return ok(ActionWorkstream, "ws "+sub+" "+slug, data)
	default:
		return fail("unknown /ws subcommand: " + sub)
	}
}

func skill(args []string) Result {
	if len(args) < 1 {
		return fail("usage: /skill use|list|show|search [id]")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "use", "show":
		if len(rest) == 0 {
			return fail("usage: /skill " + sub + " <id>")
		}
		return ok(ActionSkill, "skill "+sub+" "+rest[0], map[string]any{"op": sub, "id": rest[0]})
	case "list", "search":
		return ok(ActionSkill, "skill "+sub, map[string]any{"op": sub, "query": strings.Join(rest, " ")})
	default:
		return fail("unknown /skill subcommand: " + sub)
	}
}

func tools(args []string) Result {
	if len(args) < 1 {
		return fail("usage: /tools show|coverage|test <type>")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "show", "coverage":
		return ok(ActionTools, "tools "+sub, map[string]any{"op": sub})
	case "test":
		if len(rest) == 0 {
			return fail("usage: /tools test <type>")
		}
		return ok(ActionTools, "tools test "+rest[0], map[string]any{"op": sub, "type": rest[0]})
	default:
		return fail("unknown /tools subcommand: " + sub)
	}
}

func thinking(sess *Session, args []string) Result {
	if len(args) < 1 {
		return fail("usage: /thinking show|set|max|reset")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "show":
		return ok(ActionThinking, "thinking tier: "+sess.ThinkingTier, map[string]any{"tier": sess.ThinkingTier})
	case "reset":
		sess.ThinkingTier = ""
		return ok(ActionThinking, "thinking tier reset", nil)
	case "max":
		if len(rest) == 0 {
			return fail("usage: /thinking max <tier>")
		}
		if !validTier(sess.ThinkingTiers, rest[0]) {
			return fail("unknown thinking tier: " + rest[0])
		}
		sess.ThinkingMax = rest[0]
		return ok(ActionThinking, "thinking max: "+rest[0], map[string]any{"max": rest[0]})
	case "set":
		if len(rest) == 0 {
			return fail("usage: /thinking set <tier>")
		}
		tier := rest[0]
		if !validTier(sess.ThinkingTiers, tier) {
			return fail("unknown thinking tier: " + tier)
		}
		if sess.ThinkingMax != "" && tierRank(sess.ThinkingTiers, tier) > tierRank(sess.ThinkingTiers, sess.ThinkingMax) {
			tier = sess.ThinkingMax
		}
		sess.ThinkingTier = tier
		return ok(ActionThinking, "thinking tier: "+tier, map[string]any{"tier": tier})
	default:
		return fail("unknown /thinking subcommand: " + sub)
	}
}

func validTier(tiers []string, tier string) bool {
	for _, t := range tiers {
		if t == tier {
			return true
		}
	}
	return false
}

func tierRank(tiers []string, tier string) int {
	for i, t := range tiers {
		if t == tier {
			return i
		}
	}
	return -1
}

func help(args []string) Result {
	if len(args) == 1 {
		return ok(ActionHelp, "help: "+args[0], map[string]any{"cmd": args[0]})
	}
	return ok(ActionHelp, "available commands: /pin /unpin /focus /unfocus /halt-on /unhalt /split "+
		"/pause /resume /cancel /inject /merge /update /reload /rollback /undo /ws /skill /tools /thinking /status /reset /help", nil)
}

// normalizePath cleans a pinned/unpinned path argument to a stable
// comparable form.
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "./")
	return p
}

// MatchPattern implements the §4.15 pattern-matching helper: bare "**"
// matches any path, "**/x" matches any suffix x, "x/**" matches any
// prefix under x.
func MatchPattern(pattern, path string) bool {
	switch {
	case pattern == "**":
		return true
	case strings.HasPrefix(pattern, "**/"):
		suffix := strings.TrimPrefix(pattern, "**/")
		return path == suffix || strings.HasSuffix(path, "/"+suffix)
	case strings.HasSuffix(pattern, "/**"):
		prefix := strings.TrimSuffix(pattern, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	default:
		return pattern == path
	}
}
