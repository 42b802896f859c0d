package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

var gateConfigPath string

func init() {
	gateCmd.Flags().StringVarP(&gateConfigPath, "config", "c", "aidp.yml", "Path to aidp config file")
	rootCmd.AddCommand(gateCmd)
}

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Run every deterministic command unit as a pre-commit quality gate",
	Long: `Run each work_loop.units entry of type "command" in declaration order,
outside the work loop, against the currently staged changes. If any unit
exits non-zero, execution stops immediately and the command exits with
a non-zero code. The placeholder {staged} in a unit's command is
replaced with the space-separated list of staged file paths.

This is the command installed into .git/hooks/pre-commit by "aidp init".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadAndValidateConfig(gateConfigPath)
		if err != nil {
			return err
		}

		repoDir, err := resolveRepo(gateConfigPath)
		if err != nil {
			return err
		}

		staged, err := stagedFiles(repoDir)
		if err != nil {
			return err
		}

		ran := 0
		for _, u := range cfg.WorkLoop.Units {
			if u.Type != "command" {
				continue
			}
			ran++
			fmt.Printf("--- %s ---\n", u.Name)

			runStr := strings.ReplaceAll(u.Command, "{staged}", staged)
			c := exec.Command("sh", "-c", runStr)
			c.Dir = repoDir
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr

			if err := c.Run(); err != nil {
				return fmt.Errorf("gate %q failed", u.Name)
			}
		}
		if ran == 0 {
			fmt.Println("No command units configured.")
		}

		return nil
	},
}

// stagedFiles returns a space-separated list of staged file paths.
func stagedFiles(repoDir string) (string, error) {
	cmd := exec.Command("git", "diff", "--cached", "--name-only")
	cmd.Dir = repoDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("getting staged files: %w", err)
	}
	files := strings.TrimSpace(string(out))
	return strings.ReplaceAll(files, "\n", " "), nil
}
