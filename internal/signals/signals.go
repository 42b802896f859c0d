// Package signals extracts the closed set of structured directives an
// agentic turn's text output may contain: the next-unit hint, task
// filings and updates, and the completion marker.
package signals

import (
	"regexp"
	"strings"
)

var (
	nextUnitRe = regexp.MustCompile(`(?im)^.*?(?:NEXT_UNIT|NEXT_STEP)\s*[:=]\s*([A-Za-z0-9_\-]+)\s*$`)

	fileTaskRe = regexp.MustCompile(`(?im)File task:\s*"([^"]*)"(?:\s+priority:\s*(\w+))?(?:\s+tags:\s*([A-Za-z0-9_,\-]+))?`)

	updateTaskRe = regexp.MustCompile(`(?im)Update task:\s*(\S+)\s+status:\s*(\w+)(?:\s+reason:\s*"([^"]*)")?`)

	completeRe = regexp.MustCompile(`(?i)STATUS:\s*COMPLETE`)
)

// TaskFiling is one "File task:" directive parsed from agent output.
type TaskFiling struct {
	Description string
	Priority    string
	Tags        []string
}

// TaskUpdate is one "Update task:" directive parsed from agent output.
type TaskUpdate struct {
	ID     string
	Status string
	Reason string
}

// ExtractNextUnit matches the first line naming NEXT_UNIT or
// NEXT_STEP via ":" or "=", case-insensitively, and returns the
// trimmed identifier, or "" if none is present.
func ExtractNextUnit(text string) string {
	m := nextUnitRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ParseTaskFiling matches every "File task:" directive in text.
// Priority defaults to "medium" and tags default to empty when
// omitted. Returns nil for empty or directive-free text.
func ParseTaskFiling(text string) []TaskFiling {
	matches := fileTaskRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]TaskFiling, 0, len(matches))
	for _, m := range matches {
		priority := strings.ToLower(strings.TrimSpace(m[2]))
		if priority == "" {
			priority = "medium"
		}
		var tags []string
		if raw := strings.TrimSpace(m[3]); raw != "" {
			for _, tag := range strings.Split(raw, ",") {
				tag = strings.TrimSpace(tag)
				if tag != "" {
					tags = append(tags, tag)
				}
			}
		}
		out = append(out, TaskFiling{
			Description: m[1],
			Priority:    priority,
			Tags:        tags,
		})
	}
	return out
}

// ParseTaskUpdates matches every "Update task:" directive in text.
func ParseTaskUpdates(text string) []TaskUpdate {
	matches := updateTaskRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]TaskUpdate, 0, len(matches))
	for _, m := range matches {
		out = append(out, TaskUpdate{
			ID:     m[1],
			Status: strings.ToLower(strings.TrimSpace(m[2])),
			Reason: m[3],
		})
	}
	return out
}

// AgentMarkedComplete reports whether text contains the literal
// completion marker "STATUS: COMPLETE" (case-insensitive).
func AgentMarkedComplete(text string) bool {
	return completeRe.MatchString(text)
}
