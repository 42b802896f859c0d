// Package guard implements file-scope and change-size constraints
// applied to agent-proposed edits before they are accepted.
package guard

import (
	"os"
	"strings"
)

// Decision is the result of a canModifyFile check.
type Decision struct {
	Allowed              bool
	Reason               string
	RequiresConfirmation bool
}

// DiffStats summarizes a pending change for validateChanges.
type DiffStats struct {
	Files     []string
	Additions int
	Deletions int
}

// Policy is a GuardPolicy: pattern sets plus an optional per-commit
// line-count limit and a runtime confirmed-files set.
type Policy struct {
	Include           []string
	Exclude           []string
	Confirm           []string
	MaxLinesPerCommit int
	Enabled           bool

	confirmed map[string]bool
}

// New builds a Policy. When enabled is false, CanModifyFile always
// allows (guard is off).
func New(include, exclude, confirm []string, maxLinesPerCommit int, enabled bool) *Policy {
	return &Policy{
		Include:           include,
		Exclude:           exclude,
		Confirm:           confirm,
		MaxLinesPerCommit: maxLinesPerCommit,
		Enabled:           enabled,
		confirmed:         make(map[string]bool),
	}
}

// Bypassed returns true when AIDP_BYPASS_GUARDS is set or the policy
// is not enabled. A bypassed policy disables enforcement entirely:
// CanModifyFile always allows and ValidateChanges never fails.
func (p *Policy) Bypassed() bool {
	if !p.Enabled {
		return true
	}
	return os.Getenv("AIDP_BYPASS_GUARDS") != ""
}

// ConfirmFile marks path as confirmed, satisfying future confirm-set
// checks for it.
func (p *Policy) ConfirmFile(path string) {
	p.confirmed[path] = true
}

// CanModifyFile decides whether path may be modified. Exclude is
// checked first and always wins, even over include matches (testable
// property 10). A non-empty include set narrows allowed paths to
// those matching it. A confirm match that hasn't yet been confirmed
// blocks with RequiresConfirmation.
func (p *Policy) CanModifyFile(path string) Decision {
	if p.Bypassed() {
		return Decision{Allowed: true}
	}
	if matchesAny(p.Exclude, path) {
		return Decision{Allowed: false, Reason: "path matches an exclude pattern"}
	}
	if len(p.Include) > 0 && !matchesAny(p.Include, path) {
		return Decision{Allowed: false, Reason: "path does not match any include pattern"}
	}
	if matchesAny(p.Confirm, path) && !p.confirmed[path] {
		return Decision{Allowed: false, RequiresConfirmation: true, Reason: "path requires confirmation"}
	}
	return Decision{Allowed: true}
}

// ValidateChanges sums additions+deletions across every file in diff
// and fails when it exceeds MaxLinesPerCommit, and re-checks each
// file's exclusion.
func (p *Policy) ValidateChanges(diff DiffStats) Decision {
	if p.Bypassed() {
		return Decision{Allowed: true}
	}
	for _, f := range diff.Files {
		if d := p.CanModifyFile(f); !d.Allowed {
			return d
		}
	}
	if p.MaxLinesPerCommit > 0 && diff.Additions+diff.Deletions > p.MaxLinesPerCommit {
		return Decision{Allowed: false, Reason: "change exceeds maxLinesPerCommit"}
	}
	return Decision{Allowed: true}
}

// matchesAny reports whether path matches at least one pattern.
func matchesAny(patterns []string, path string) bool {
	for _, pat := range patterns {
		if Match(pat, path) {
			return true
		}
	}
	return false
}

// Match implements the glob-like pattern syntax from §4.9 and §4.15:
// "*" (no "/"), "**" (any run of characters including "/"), "?"
// (single character), and "{a,b}" brace alternation. It is hand-rolled
// rather than delegated to a .gitignore-style library because brace
// alternation isn't part of that syntax.
func Match(pattern, path string) bool {
	for _, alt := range expandBraces(pattern) {
		if matchOne(alt, path) {
			return true
		}
	}
	return false
}

// expandBraces turns "a/{b,c}/d" into ["a/b/d", "a/c/d"]. Patterns
// without braces return a single-element slice.
func expandBraces(pattern string) []string {
	start := strings.IndexByte(pattern, '{')
	if start < 0 {
		return []string{pattern}
	}
	end := strings.IndexByte(pattern[start:], '}')
	if end < 0 {
		return []string{pattern}
	}
	end += start
	prefix := pattern[:start]
	suffix := pattern[end+1:]
	options := strings.Split(pattern[start+1:end], ",")

	var out []string
	for _, opt := range options {
		for _, rest := range expandBraces(prefix + opt + suffix) {
			out = append(out, rest)
		}
	}
	return out
}

// matchOne matches a single brace-free pattern against path using a
// small recursive-descent matcher over "**", "*", and "?".
func matchOne(pattern, path string) bool {
	return matchSegments(pattern, path)
}

func matchSegments(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	if strings.HasPrefix(pattern, "**") {
		rest := pattern[2:]
		if rest == "" {
			return true
		}
		rest = strings.TrimPrefix(rest, "/")
		for i := 0; i <= len(s); i++ {
			if matchSegments(rest, s[i:]) {
				return true
			}
		}
		return false
	}
	if pattern[0] == '*' {
		rest := pattern[1:]
		for i := 0; i <= len(s); i++ {
			if s[:i] != "" && strings.ContainsRune(s[:i], '/') {
				break
			}
			if matchSegments(rest, s[i:]) {
				return true
			}
		}
		return false
	}
	if s == "" {
		return false
	}
	if pattern[0] == '?' {
		if s[0] == '/' {
			return false
		}
		return matchSegments(pattern[1:], s[1:])
	}
	if pattern[0] != s[0] {
		return false
	}
	return matchSegments(pattern[1:], s[1:])
}
