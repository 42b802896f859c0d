package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitHook_CreatesFreshHookWhenNoneExists(t *testing.T) {
	repoDir := t.TempDir()

	err := initHook(repoDir, "pre-commit", gateBeginMarker, gateBlock)

	require.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(repoDir, ".git", "hooks", "pre-commit"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "#!/bin/sh")
	assert.Contains(t, string(content), gateBeginMarker)
}

func TestInitHook_IsIdempotent(t *testing.T) {
	repoDir := t.TempDir()
	require.NoError(t, initHook(repoDir, "pre-commit", gateBeginMarker, gateBlock))

	require.NoError(t, initHook(repoDir, "pre-commit", gateBeginMarker, gateBlock))

	content, err := os.ReadFile(filepath.Join(repoDir, ".git", "hooks", "pre-commit"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), gateBeginMarker))
}

func TestInitHook_InjectsIntoExistingHookBeforeExit0(t *testing.T) {
	repoDir := t.TempDir()
	hookDir := filepath.Join(repoDir, ".git", "hooks")
	require.NoError(t, os.MkdirAll(hookDir, 0o755))
	existing := "#!/bin/sh\necho running other checks\nexit 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(hookDir, "pre-commit"), []byte(existing), 0o755))

	err := initHook(repoDir, "pre-commit", gateBeginMarker, gateBlock)

	require.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(hookDir, "pre-commit"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "echo running other checks")
	assert.Contains(t, string(content), gateBeginMarker)
	assert.True(t, strings.Index(string(content), gateBeginMarker) < strings.Index(string(content), "exit 0"))
}

func TestInitHook_AppendsWhenNoExitMarker(t *testing.T) {
	repoDir := t.TempDir()
	hookDir := filepath.Join(repoDir, ".git", "hooks")
	require.NoError(t, os.MkdirAll(hookDir, 0o755))
	existing := "#!/bin/sh\necho hi"
	require.NoError(t, os.WriteFile(filepath.Join(hookDir, "pre-commit"), []byte(existing), 0o755))

	err := initHook(repoDir, "pre-commit", gateBeginMarker, gateBlock)

	require.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(hookDir, "pre-commit"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "echo hi")
	assert.Contains(t, string(content), gateBeginMarker)
}
