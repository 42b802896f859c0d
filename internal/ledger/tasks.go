package ledger

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
	"github.com/re-cinq/aidp-loop/internal/clock"
)

// TaskStatus is the closed enum a Task's status must belong to.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusAbandoned  TaskStatus = "abandoned"
)

func validTaskStatus(s TaskStatus) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusAbandoned:
		return true
	}
	return false
}

// Priority is the closed enum a Task's priority must belong to.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func validPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Task is one ledger record. Each append is immutable; the latest
// record per id is the logical current state.
type Task struct {
	ID               string     `json:"id"`
	Description      string     `json:"description"`
	Status           TaskStatus `json:"status"`
	Priority         Priority   `json:"priority"`
	Session          string     `json:"session,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	DiscoveredDuring string     `json:"discoveredDuring,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	AbandonedAt      *time.Time `json:"abandonedAt,omitempty"`
	AbandonedReason  string     `json:"abandonedReason,omitempty"`
}

// CreateOptions configures TaskLedger.Create.
type CreateOptions struct {
	Priority         Priority
	Session          string
	DiscoveredDuring string
	Tags             []string
}

// UpdateOptions configures TaskLedger.UpdateStatus.
type UpdateOptions struct {
	Reason string
}

// Filter narrows TaskLedger.All.
type Filter struct {
	Status   TaskStatus
	Priority Priority
	Tag      string
	Since    time.Time
}

// Counts summarizes the ledger by status.
type Counts struct {
	Pending    int
	InProgress int
	Done       int
	Abandoned  int
}

// TaskLedger replays an AppendOnlyLog into latest-state-per-id task
// records. It is process-wide: every step shares one TaskLedger, and
// the task-completion gate reads across all of them.
type TaskLedger struct {
	log   *AppendOnlyLog
	clock clock.Clock

	mu      sync.Mutex
	known   map[string]bool // ids that have ever been created, for TaskNotFound checks
}

// NewTaskLedger wraps log as a task ledger. known ids are seeded by
// replaying the log once at construction.
func NewTaskLedger(log *AppendOnlyLog, c clock.Clock) (*TaskLedger, error) {
	tl := &TaskLedger{log: log, clock: c, known: make(map[string]bool)}
	if err := tl.log.Scan(func(raw []byte) error {
		var t Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return err
		}
		tl.known[t.ID] = true
		return nil
	}); err != nil {
		return nil, err
	}
	return tl, nil
}

// Create appends a new task record and returns it.
func (l *TaskLedger) Create(description string, opts CreateOptions) (Task, error) {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" || len(trimmed) > 200 {
		return Task{}, &aidperr.InvalidTask{Reason: "description must be non-empty and at most 200 characters after trim"}
	}
	priority := opts.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !validPriority(priority) {
		return Task{}, &aidperr.InvalidTask{Reason: "unknown priority: " + string(priority)}
	}
	now := l.clock.Now()
	t := Task{
		ID:               uuid.NewString(),
		Description:      trimmed,
		Status:           StatusPending,
		Priority:         priority,
		Session:          opts.Session,
		Tags:             append([]string(nil), opts.Tags...),
		DiscoveredDuring: opts.DiscoveredDuring,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := l.log.Append(t); err != nil {
		return Task{}, err
	}
	l.mu.Lock()
	l.known[t.ID] = true
	l.mu.Unlock()
	return t, nil
}

// UpdateStatus appends a new record transitioning id to status.
func (l *TaskLedger) UpdateStatus(id string, status TaskStatus, opts UpdateOptions) (Task, error) {
	if !validTaskStatus(status) {
		return Task{}, &aidperr.InvalidTask{Reason: "unknown status: " + string(status)}
	}
	l.mu.Lock()
	known := l.known[id]
	l.mu.Unlock()
	if !known {
		return Task{}, &aidperr.TaskNotFound{ID: id}
	}
	prior, err := l.Find(id)
	if err != nil {
		return Task{}, err
	}
	if prior == nil {
		return Task{}, &aidperr.TaskNotFound{ID: id}
	}
	next := *prior
	next.Status = status
	now := l.clock.Now()
	next.UpdatedAt = now
	switch status {
	case StatusInProgress:
		if next.StartedAt == nil {
			t := now
			next.StartedAt = &t
		}
	case StatusDone:
		t := now
		next.CompletedAt = &t
	case StatusAbandoned:
		t := now
		next.AbandonedAt = &t
		next.AbandonedReason = opts.Reason
	}
	if err := l.log.Append(next); err != nil {
		return Task{}, err
	}
	return next, nil
}

// Find replays the log and returns the latest record for id, or nil.
func (l *TaskLedger) Find(id string) (*Task, error) {
	latest, err := l.replayLatest()
	if err != nil {
		return nil, err
	}
	if t, ok := latest[id]; ok {
		cp := t
		return &cp, nil
	}
	return nil, nil
}

// All replays the log, keeps only the latest record per id, applies
// filter, and sorts by createdAt descending.
func (l *TaskLedger) All(filter Filter) ([]Task, error) {
	latest, err := l.replayLatest()
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(latest))
	for _, t := range latest {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			continue
		}
		if filter.Tag != "" && !containsTag(t.Tags, filter.Tag) {
			continue
		}
		if !filter.Since.IsZero() && t.CreatedAt.Before(filter.Since) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Counts tallies the latest state of every task by status.
func (l *TaskLedger) Counts() (Counts, error) {
	latest, err := l.replayLatest()
	if err != nil {
		return Counts{}, err
	}
	var c Counts
	for _, t := range latest {
		switch t.Status {
		case StatusPending:
			c.Pending++
		case StatusInProgress:
			c.InProgress++
		case StatusDone:
			c.Done++
		case StatusAbandoned:
			c.Abandoned++
		}
	}
	return c, nil
}

// Pending returns every task whose latest status is pending.
func (l *TaskLedger) Pending() ([]Task, error) { return l.All(Filter{Status: StatusPending}) }

// InProgress returns every task whose latest status is in_progress.
func (l *TaskLedger) InProgress() ([]Task, error) { return l.All(Filter{Status: StatusInProgress}) }

func (l *TaskLedger) replayLatest() (map[string]Task, error) {
	latest := make(map[string]Task)
	err := l.log.Scan(func(raw []byte) error {
		var t Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return err
		}
		latest[t.ID] = t
		return nil
	})
	return latest, err
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
