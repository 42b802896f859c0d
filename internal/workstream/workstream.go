// Package workstream implements the multi-worktree registry: one
// isolated checkout per parallel line of work, persisted as JSON with
// atomic temp-file-plus-rename writes.
package workstream

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
	"github.com/re-cinq/aidp-loop/internal/applog"
	"github.com/re-cinq/aidp-loop/internal/clock"
)

var slugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Workstream is one isolated worktree entry.
type Workstream struct {
	Slug       string    `json:"slug"`
	Branch     string    `json:"branch"`
	Path       string    `json:"path"`
	BaseBranch string    `json:"baseBranch,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// VcsDriver is the subset of the external VCS driver the manager
// needs.
type VcsDriver interface {
	CreateWorktree(path, branch, base string) error
	RemoveWorktree(path, branch string, deleteBranch bool) error
}

// Manager owns the workstream registry for one project.
type Manager struct {
	projectDir string
	vcs        VcsDriver
	clock      clock.Clock
	log        applog.Logger

	mu      sync.Mutex
	entries map[string]Workstream
}

// New builds a Manager rooted at projectDir, loading any existing
// registry. A malformed registry file is logged as a warning and
// treated as empty rather than failing construction.
func New(projectDir string, vcs VcsDriver, c clock.Clock, log applog.Logger) *Manager {
	if c == nil {
		c = clock.Real{}
	}
	if log == nil {
		log = applog.Discard{}
	}
	m := &Manager{projectDir: projectDir, vcs: vcs, clock: c, log: log, entries: make(map[string]Workstream)}
	m.load()
	return m
}

func (m *Manager) registryPath() string {
	return filepath.Join(m.projectDir, ".aidp", "pr_worktrees.json")
}

func (m *Manager) load() {
	data, err := os.ReadFile(m.registryPath())
	if err != nil {
		return
	}
	var entries map[string]Workstream
	if err := json.Unmarshal(data, &entries); err != nil {
		m.log.Warn("workstream: malformed registry, treating as empty", "path", m.registryPath(), "err", err)
		return
	}
	m.entries = entries
}

// save persists the registry atomically via temp-file + rename.
func (m *Manager) save() error {
	data, err := json.MarshalIndent(m.entries, "", "  ")
	if err != nil {
		return &aidperr.PersistenceFailure{Path: m.registryPath(), Err: err}
	}
	path := m.registryPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &aidperr.PersistenceFailure{Path: path, Err: err}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &aidperr.PersistenceFailure{Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &aidperr.PersistenceFailure{Path: path, Err: err}
	}
	return nil
}

// AlreadyExists reports a duplicate-slug Create call.
type AlreadyExists struct{ Slug string }

func (e *AlreadyExists) Error() string { return fmt.Sprintf("workstream already exists: %s", e.Slug) }

// NotFound reports an operation on an unregistered slug.
type NotFound struct{ Slug string }

func (e *NotFound) Error() string { return fmt.Sprintf("workstream not found: %s", e.Slug) }

// Create provisions a worktree at .worktrees/<slug> on branch
// aidp/<slug> forked from baseBranch (or HEAD if empty).
func (m *Manager) Create(slug, baseBranch string) (Workstream, error) {
	if !slugRe.MatchString(slug) {
		return Workstream{}, fmt.Errorf("workstream: invalid slug %q", slug)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[slug]; exists {
		return Workstream{}, &AlreadyExists{Slug: slug}
	}
	branch := "aidp/" + slug
	path := filepath.Join(m.projectDir, ".worktrees", slug)
	if err := m.vcs.CreateWorktree(path, branch, baseBranch); err != nil {
		return Workstream{}, err
	}
	ws := Workstream{Slug: slug, Branch: branch, Path: path, BaseBranch: baseBranch, CreatedAt: m.clock.Now()}
	m.entries[slug] = ws
	if err := m.save(); err != nil {
		return Workstream{}, err
	}
	return ws, nil
}

// Remove unregisters slug and asks the VCS driver to drop its
// worktree, optionally deleting its branch too.
func (m *Manager) Remove(slug string, deleteBranch bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.entries[slug]
	if !ok {
		return &NotFound{Slug: slug}
	}
	if err := m.vcs.RemoveWorktree(ws.Path, ws.Branch, deleteBranch); err != nil {
		return err
	}
	delete(m.entries, slug)
	return m.save()
}

// List returns every registered workstream.
func (m *Manager) List() []Workstream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Workstream, 0, len(m.entries))
	for _, ws := range m.entries {
		out = append(out, ws)
	}
	return out
}

// Info returns the registered workstream for slug.
func (m *Manager) Info(slug string) (Workstream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.entries[slug]
	if !ok {
		return Workstream{}, &NotFound{Slug: slug}
	}
	return ws, nil
}

// CleanupStale removes every workstream older than thresholdDays.
func (m *Manager) CleanupStale(thresholdDays int) ([]string, error) {
	cutoff := m.clock.Now().AddDate(0, 0, -thresholdDays)
	var removed []string
	for _, ws := range m.List() {
		if ws.CreatedAt.Before(cutoff) {
			if err := m.Remove(ws.Slug, false); err != nil {
				return removed, err
			}
			removed = append(removed, ws.Slug)
		}
	}
	return removed, nil
}
