package cli

import (
	"github.com/spf13/cobra"

	"github.com/re-cinq/aidp-loop/internal/fileutil"
	"github.com/re-cinq/aidp-loop/internal/shell"
)

var replStep string

func init() {
	replCmd.Flags().StringVar(&replStep, "step", "default", "Step name the shell drives")
	rootCmd.AddCommand(replCmd)
}

var replCmd = &cobra.Command{
	Use:   "repl <config-file>",
	Short: "Start the interactive work-loop shell",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHarness(args[0])
		if err != nil {
			return err
		}
		h.vcs.EnsureIdentity()

		thinkingTiers := make([]string, 0, len(h.cfg.Thinking))
		for _, t := range h.cfg.Thinking {
			thinkingTiers = append(thinkingTiers, t.Name)
		}
		cacheDir := fileutil.AidpSubdir(h.repoDir, "shell")

		sh := shell.New(h.async, h.vcs, h.ws, h.cfg.DefaultBranch, thinkingTiers, cacheDir, replStep, h.repoDir, h.log)
		return sh.Run()
	},
}
