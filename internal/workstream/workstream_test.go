package workstream

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/re-cinq/aidp-loop/internal/clock"
)

type fakeVcsDriver struct {
	createErr        error
	removeErr        error
	createdPath      string
	createdBranch    string
	createdBase      string
	removedPath      string
	removedBranch    string
	removedDeleteBr  bool
}

func (f *fakeVcsDriver) CreateWorktree(path, branch, base string) error {
	f.createdPath, f.createdBranch, f.createdBase = path, branch, base
	return f.createErr
}

func (f *fakeVcsDriver) RemoveWorktree(path, branch string, deleteBranch bool) error {
	f.removedPath, f.removedBranch, f.removedDeleteBr = path, branch, deleteBranch
	return f.removeErr
}

func TestManager_Create_RegistersWorktreeUnderAidpPrefix(t *testing.T) {
	dir := t.TempDir()
	vcs := &fakeVcsDriver{}
	m := New(dir, vcs, clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), nil)

	ws, err := m.Create("feature-x", "main")

	require.NoError(t, err)
	assert.Equal(t, "aidp/feature-x", ws.Branch)
	assert.Equal(t, filepath.Join(dir, ".worktrees", "feature-x"), ws.Path)
	assert.Equal(t, "main", vcs.createdBase)
}

func TestManager_Create_RejectsInvalidSlug(t *testing.T) {
	m := New(t.TempDir(), &fakeVcsDriver{}, clock.NewFake(time.Now()), nil)

	_, err := m.Create("Not Valid!", "main")

	assert.Error(t, err)
}

func TestManager_Create_DuplicateSlugReturnsAlreadyExists(t *testing.T) {
	m := New(t.TempDir(), &fakeVcsDriver{}, clock.NewFake(time.Now()), nil)
	_, err := m.Create("dup", "main")
	require.NoError(t, err)

	_, err = m.Create("dup", "main")

	var exists *AlreadyExists
	assert.ErrorAs(t, err, &exists)
}

func TestManager_Remove_UnknownSlugReturnsNotFound(t *testing.T) {
	m := New(t.TempDir(), &fakeVcsDriver{}, clock.NewFake(time.Now()), nil)

	err := m.Remove("ghost", false)

	var notFound *NotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestManager_Remove_DropsFromRegistry(t *testing.T) {
	m := New(t.TempDir(), &fakeVcsDriver{}, clock.NewFake(time.Now()), nil)
	_, err := m.Create("gone-soon", "main")
	require.NoError(t, err)

	require.NoError(t, m.Remove("gone-soon", true))

	_, err = m.Info("gone-soon")
	assert.Error(t, err)
}

func TestManager_List_ReturnsAllRegisteredWorkstreams(t *testing.T) {
	m := New(t.TempDir(), &fakeVcsDriver{}, clock.NewFake(time.Now()), nil)
	_, err := m.Create("a", "main")
	require.NoError(t, err)
	_, err = m.Create("b", "main")
	require.NoError(t, err)

	list := m.List()

	assert.Len(t, list, 2)
}

func TestManager_Create_PersistsAcrossNewManagerInstances(t *testing.T) {
	dir := t.TempDir()
	m1 := New(dir, &fakeVcsDriver{}, clock.NewFake(time.Now()), nil)
	_, err := m1.Create("persisted", "main")
	require.NoError(t, err)

	m2 := New(dir, &fakeVcsDriver{}, clock.NewFake(time.Now()), nil)
	ws, err := m2.Info("persisted")

	require.NoError(t, err)
	assert.Equal(t, "aidp/persisted", ws.Branch)
}

func TestManager_Load_MalformedRegistryIsTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".aidp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".aidp", "pr_worktrees.json"), []byte("{not json"), 0o644))

	m := New(dir, &fakeVcsDriver{}, clock.NewFake(time.Now()), nil)

	assert.Empty(t, m.List())
}

func TestManager_CleanupStale_RemovesOnlyEntriesOlderThanThreshold(t *testing.T) {
	dir := t.TempDir()
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := New(dir, &fakeVcsDriver{}, c, nil)

	_, err := m.Create("old", "main")
	require.NoError(t, err)
	c.Advance(10 * 24 * time.Hour)
	_, err = m.Create("new", "main")
	require.NoError(t, err)

	removed, err := m.CleanupStale(5)

	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, removed)
	assert.Len(t, m.List(), 1)
}
