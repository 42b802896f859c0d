// Package instructions implements the thread-safe priority queue of
// REPL-submitted instructions consumed by the fix-forward engine at
// iteration boundaries.
package instructions

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/re-cinq/aidp-loop/internal/clock"
)

// Type is the closed enum an Instruction's type must belong to.
type Type string

const (
	TypeUserInput     Type = "user_input"
	TypePlanUpdate    Type = "plan_update"
	TypeConstraint    Type = "constraint"
	TypeClarification Type = "clarification"
	TypeAcceptance    Type = "acceptance"
)

func validType(t Type) bool {
	switch t {
	case TypeUserInput, TypePlanUpdate, TypeConstraint, TypeClarification, TypeAcceptance:
		return true
	}
	return false
}

// Priority is the closed enum an Instruction's priority must belong
// to. Lower values are scheduled first.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityNormal   Priority = 3
	PriorityLow      Priority = 4
)

func validPriority(p Priority) bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Instruction is one queued REPL directive.
type Instruction struct {
	Content   string
	Type      Type
	Priority  Priority
	Timestamp time.Time
}

// Queue is a thread-safe priority queue ordered by (priority asc,
// timestamp asc).
type Queue struct {
	mu    sync.Mutex
	items []Instruction
	clock clock.Clock
}

// New builds an empty Queue using c as its timestamp source.
func New(c clock.Clock) *Queue {
	if c == nil {
		c = clock.Real{}
	}
	return &Queue{clock: c}
}

// Enqueue validates type and priority and adds content to the queue.
func (q *Queue) Enqueue(content string, t Type, p Priority) (Instruction, error) {
	if !validType(t) {
		return Instruction{}, fmt.Errorf("instructions: invalid type %q", t)
	}
	if !validPriority(p) {
		return Instruction{}, fmt.Errorf("instructions: invalid priority %d", p)
	}
	inst := Instruction{Content: content, Type: t, Priority: p, Timestamp: q.clock.Now()}
	q.mu.Lock()
	q.items = append(q.items, inst)
	q.mu.Unlock()
	return inst, nil
}

// DequeueAll returns every queued instruction sorted by (priority,
// timestamp) and empties the queue atomically.
func (q *Queue) DequeueAll() []Instruction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := sortedCopy(q.items)
	q.items = nil
	return out
}

// PeekAll returns every queued instruction in the same order as
// DequeueAll, without removing them.
func (q *Queue) PeekAll() []Instruction {
	q.mu.Lock()
	defer q.mu.Unlock()
	return sortedCopy(q.items)
}

// Empty reports whether the queue currently holds no instructions.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

func sortedCopy(items []Instruction) []Instruction {
	out := make([]Instruction, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// FormatForPrompt renders instructions as a human-readable block
// grouped by type, with critical entries called out first.
func FormatForPrompt(instructions []Instruction) string {
	if len(instructions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Queued Instructions\n\n")

	var critical []Instruction
	grouped := map[Type][]Instruction{}
	var order []Type
	for _, inst := range instructions {
		if inst.Priority == PriorityCritical {
			critical = append(critical, inst)
		}
		if _, ok := grouped[inst.Type]; !ok {
			order = append(order, inst.Type)
		}
		grouped[inst.Type] = append(grouped[inst.Type], inst)
	}

	if len(critical) > 0 {
		b.WriteString("### CRITICAL\n")
		for _, inst := range critical {
			fmt.Fprintf(&b, "- %s\n", inst.Content)
		}
		b.WriteString("\n")
	}

	for _, t := range order {
		fmt.Fprintf(&b, "### %s\n", t)
		for _, inst := range grouped[t] {
			fmt.Fprintf(&b, "- %s\n", inst.Content)
		}
		b.WriteString("\n")
	}
	return b.String()
}
