// Package report renders Markdown summaries of checkpoint and task
// state to an ANSI terminal via glamour.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/re-cinq/aidp-loop/internal/checkpoint"
	"github.com/re-cinq/aidp-loop/internal/ledger"
)

// Renderer wraps a glamour.TermRenderer configured for a fixed word
// wrap, rebuilt once per Renderer instance.
type Renderer struct {
	term *glamour.TermRenderer
}

// New builds a Renderer word-wrapped to width columns. width<=0 sets
// no wrap option, leaving glamour's default word wrap in place.
func New(width int) (*Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	term, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}
	return &Renderer{term: term}, nil
}

// Render converts Markdown source to its rendered ANSI form.
func (r *Renderer) Render(markdown string) (string, error) {
	return r.term.Render(markdown)
}

// CheckpointSummary renders a checkpoint.Summary as Markdown.
func CheckpointSummary(s checkpoint.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Checkpoint: %s (iteration %d)\n\n", s.Current.StepName, s.Current.Iteration)
	fmt.Fprintf(&b, "**Status:** %s\n\n", s.Current.Status)
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Lines of code | %d |\n", s.Current.Metrics.LinesOfCode)
	fmt.Fprintf(&b, "| File count | %d |\n", s.Current.Metrics.FileCount)
	fmt.Fprintf(&b, "| Test coverage | %.1f%% |\n", s.Current.Metrics.TestCoverage)
	fmt.Fprintf(&b, "| Code quality | %.1f |\n", s.Current.Metrics.CodeQuality)
	fmt.Fprintf(&b, "| PRD task progress | %.1f%% |\n", s.Current.Metrics.PRDTaskProgress)
	if s.Previous != nil {
		b.WriteString("\n## Trends\n\n")
		for name, trend := range s.Trends {
			fmt.Fprintf(&b, "- %s: %s (%+.1f, %+.1f%%)\n", name, trend.Direction, trend.Change, trend.ChangePercent)
		}
	}
	return b.String()
}

// TaskSummary renders per-status counts followed by one Markdown table
// row per task, in the order given.
func TaskSummary(tasks []ledger.Task, counts ledger.Counts) string {
	var b strings.Builder
	b.WriteString("# Tasks\n\n")
	fmt.Fprintf(&b, "pending: %d &nbsp; in_progress: %d &nbsp; done: %d &nbsp; abandoned: %d\n\n",
		counts.Pending, counts.InProgress, counts.Done, counts.Abandoned)
	b.WriteString("| ID | Status | Priority | Description |\n|---|---|---|---|\n")
	for _, t := range tasks {
		id := t.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", id, t.Status, t.Priority, escapePipes(t.Description))
	}
	return b.String()
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
