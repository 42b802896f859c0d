package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/re-cinq/aidp-loop/internal/fileutil"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Scaffold .aidp/ and install the pre-commit gate hook",
	Long: `Initialize aidp scaffolding in the target repository (defaults to
the current directory):

  - Creates .aidp/work_loop/, .aidp/agent-logs/, and .aidp/shell/
  - Installs an idempotent "aidp gate" call into .git/hooks/pre-commit`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}

		absDir, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		if _, err := os.Stat(filepath.Join(absDir, ".git")); err != nil {
			return fmt.Errorf("%s is not a git repository (no .git directory)", absDir)
		}

		for _, sub := range []string{"work_loop", "agent-logs", "shell"} {
			target := fileutil.AidpSubdir(absDir, sub)
			if err := fileutil.EnsureDir(target); err != nil {
				return fmt.Errorf("creating %s: %w", target, err)
			}
			fmt.Printf("  dir    .aidp/%s\n", sub)
		}

		if err := initPreCommitHook(absDir); err != nil {
			return fmt.Errorf("installing pre-commit hook: %w", err)
		}

		fmt.Println("\nDone.")
		return nil
	},
}

const (
	gateBeginMarker = "# BEGIN aidp gate"
	gateBlock       = `# BEGIN aidp gate
if command -v aidp >/dev/null 2>&1; then
    aidp gate || exit 1
fi
# END aidp gate`
)

// initPreCommitHook installs or injects an "aidp gate" call into
// .git/hooks/pre-commit. If no hook exists, a fresh one is created. If
// one exists, the gate block is injected using sentinel markers.
// Re-running is idempotent: the sentinel is detected and skipped.
func initPreCommitHook(repoDir string) error {
	return initHook(repoDir, "pre-commit", gateBeginMarker, gateBlock)
}

// initHook installs or injects a block into a git hook script.
func initHook(repoDir, hookName, beginMarker, block string) error {
	hookDir := filepath.Join(repoDir, ".git", "hooks")
	hookPath := filepath.Join(hookDir, hookName)

	if err := fileutil.EnsureDir(hookDir); err != nil {
		return fmt.Errorf("creating hooks directory: %w", err)
	}

	existing, err := os.ReadFile(hookPath)
	if err == nil {
		return injectBlock(hookPath, hookName, beginMarker, block, string(existing))
	}

	content := "#!/bin/sh\n" + block + "\n"
	if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
		return fmt.Errorf("writing %s hook: %w", hookName, err)
	}

	fmt.Printf("  hook   .git/hooks/%s\n", hookName)
	return nil
}

// injectBlock injects a block into an existing hook script. If the
// sentinel markers are already present, it's a no-op.
func injectBlock(hookPath, hookName, beginMarker, block, content string) error {
	if strings.Contains(content, beginMarker) {
		fmt.Printf("  skip   .git/hooks/%s (aidp gate already present)\n", hookName)
		return nil
	}

	var updated string
	if strings.LastIndex(content, "\nexit 0") != -1 {
		idx := strings.LastIndex(content, "\nexit 0")
		updated = content[:idx] + "\n" + block + "\n" + content[idx+1:]
	} else {
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		updated = content + "\n" + block + "\n"
	}

	if err := os.WriteFile(hookPath, []byte(updated), 0o755); err != nil {
		return fmt.Errorf("writing %s hook: %w", hookName, err)
	}

	fmt.Printf("  hook   .git/hooks/%s (injected aidp gate)\n", hookName)
	return nil
}
