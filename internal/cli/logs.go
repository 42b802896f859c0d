package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/re-cinq/aidp-loop/internal/fileutil"
)

var (
	logsFollow bool
	logsTail   int
)

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show")
	rootCmd.AddCommand(logsCmd)
}

var logsCmd = &cobra.Command{
	Use:   "logs <config-file>",
	Short: "Show the most recent agent invocation's transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := resolveRepo(args[0])
		if err != nil {
			return err
		}

		logDir := fileutil.AidpSubdir(repoDir, "agent-logs")
		entries, err := os.ReadDir(logDir)
		if err != nil {
			return fmt.Errorf("no agent logs found at %s", logDir)
		}
		var latest string
		var latestMod time.Time
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if latest == "" || info.ModTime().After(latestMod) || (info.ModTime().Equal(latestMod) && e.Name() > latest) {
				latest, latestMod = e.Name(), info.ModTime()
			}
		}
		if latest == "" {
			return fmt.Errorf("no agent logs found at %s", logDir)
		}
		logPath := filepath.Join(logDir, latest)

		tailArgs := []string{"-n", fmt.Sprintf("%d", logsTail)}
		if logsFollow {
			tailArgs = append(tailArgs, "-f")
		}
		tailArgs = append(tailArgs, logPath)

		tailCmd := exec.Command("tail", tailArgs...)
		tailCmd.Stdout = os.Stdout
		tailCmd.Stderr = os.Stderr
		return tailCmd.Run()
	},
}
