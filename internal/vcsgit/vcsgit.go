// Package vcsgit is the concrete VcsDriver: a thin wrapper over the
// git CLI with retry-with-backoff on transient lock failures, adapted
// from a single-repo station driver into a multi-worktree workstream
// driver.
package vcsgit

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
)

const (
	retryInitialDelay = 200 * time.Millisecond
	retryMaxAttempts  = 6
	retryMultiplier   = 2
)

var transientPatterns = []string{
	"index file open failed",
	"index.lock",
	"cannot lock ref",
}

func isTransient(errMsg string) bool {
	for _, p := range transientPatterns {
		if strings.Contains(errMsg, p) {
			return true
		}
	}
	return false
}

// Driver implements engine.VcsDriver over a local git checkout.
type Driver struct {
	Dir string

	sleep func(time.Duration)
}

// NewDriver builds a Driver rooted at dir.
func NewDriver(dir string) *Driver {
	return &Driver{Dir: dir, sleep: time.Sleep}
}

// run executes a git subcommand in Dir, retrying transient lock
// failures with exponential backoff.
func (d *Driver) run(args ...string) (string, error) {
	sleep := d.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	delay := retryInitialDelay
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		cmd := exec.Command("git", args...)
		cmd.Dir = d.Dir
		out, err := cmd.CombinedOutput()
		if err == nil {
			return strings.TrimSpace(string(out)), nil
		}
		errMsg := strings.TrimSpace(string(out))
		if !isTransient(errMsg) || attempt == retryMaxAttempts-1 {
			return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), errMsg, err)
		}
		sleep(delay)
		delay *= retryMultiplier
	}
	return "", nil
}

// EnsureIdentity sets user.name/user.email locally when unresolvable,
// preventing "Author identity unknown" failures in CI.
func (d *Driver) EnsureIdentity() {
	if _, err := d.run("config", "user.name"); err != nil {
		_, _ = d.run("config", "user.name", "aidp-loop")
	}
	if _, err := d.run("config", "user.email"); err != nil {
		_, _ = d.run("config", "user.email", "aidp-loop@localhost")
	}
}

// CreateWorktree checks out branch (creating it from base if absent)
// as a new worktree at path.
func (d *Driver) CreateWorktree(path, branch, base string) error {
	if _, err := d.run("rev-parse", "--verify", branch); err != nil {
		from := base
		if from == "" {
			from = "HEAD"
		}
		if _, err := d.run("branch", branch, from); err != nil {
			return &aidperr.WorktreeError{Op: "create branch", Err: err}
		}
	}
	if _, err := d.run("worktree", "add", path, branch); err != nil {
		return &aidperr.WorktreeError{Op: "create worktree", Err: err}
	}
	return nil
}

// RemoveWorktree drops the worktree at path, optionally deleting its
// branch too.
func (d *Driver) RemoveWorktree(path, branch string, deleteBranch bool) error {
	if _, err := d.run("worktree", "remove", "--force", path); err != nil {
		return &aidperr.WorktreeError{Op: "remove worktree", Err: err}
	}
	if deleteBranch {
		if _, err := d.run("branch", "-D", branch); err != nil {
			return &aidperr.WorktreeError{Op: "delete branch", Err: err}
		}
	}
	return nil
}

// WorktreeEntry is one line of `git worktree list --porcelain`.
type WorktreeEntry struct {
	Path   string
	Branch string
}

// ListWorktrees returns every registered worktree.
func (d *Driver) ListWorktrees() ([]WorktreeEntry, error) {
	out, err := d.run("worktree", "list", "--porcelain")
	if err != nil {
		return nil, &aidperr.WorktreeError{Op: "list worktrees", Err: err}
	}
	var entries []WorktreeEntry
	var cur WorktreeEntry
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			if cur.Path != "" {
				entries = append(entries, cur)
			}
			cur = WorktreeEntry{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	if cur.Path != "" {
		entries = append(entries, cur)
	}
	return entries, nil
}

// RollbackCommits soft-resets the current branch back n commits,
// preserving file changes. Rollback is an explicit workstream
// management operation the engine itself never performs.
func (d *Driver) RollbackCommits(n int) error {
	ref := fmt.Sprintf("HEAD~%d", n)
	if _, err := d.run("reset", "--soft", ref); err != nil {
		return &aidperr.WorktreeError{Op: "rollback", Err: err}
	}
	return nil
}

// CurrentBranch returns the checked-out branch name.
func (d *Driver) CurrentBranch() (string, error) {
	out, err := d.run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", &aidperr.WorktreeError{Op: "current branch", Err: err}
	}
	return out, nil
}

// HasChanges reports whether the worktree has uncommitted changes.
func (d *Driver) HasChanges() (bool, error) {
	out, err := d.run("status", "--porcelain")
	if err != nil {
		return false, &aidperr.WorktreeError{Op: "status", Err: err}
	}
	return strings.TrimSpace(out) != "", nil
}

// StageAll stages every change, including untracked files.
func (d *Driver) StageAll() error {
	_, err := d.run("add", "-A")
	if err != nil {
		return &aidperr.WorktreeError{Op: "stage", Err: err}
	}
	return nil
}

// Commit creates a commit with message, skipping the repository's
// commit hooks (--no-verify).
func (d *Driver) Commit(message string) error {
	_, err := d.run("commit", "--no-verify", "-m", message)
	if err != nil {
		return &aidperr.WorktreeError{Op: "commit", Err: err}
	}
	return nil
}
