package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/re-cinq/aidp-loop/internal/ledger"
	"github.com/re-cinq/aidp-loop/internal/report"
)

var (
	tasksStatus string
	tasksFormat string
)

func init() {
	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "Filter by status (pending, in_progress, done, abandoned)")
	tasksCmd.Flags().StringVar(&tasksFormat, "format", "term", "Output format: term (glamour) or md (raw Markdown)")
	rootCmd.AddCommand(tasksCmd)
}

var tasksCmd = &cobra.Command{
	Use:   "tasks <config-file>",
	Short: "List and filter the append-only task ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHarness(args[0])
		if err != nil {
			return err
		}

		filter := ledger.Filter{}
		if tasksStatus != "" {
			filter.Status = ledger.TaskStatus(tasksStatus)
		}
		tasks, err := h.tasks.All(filter)
		if err != nil {
			return err
		}
		counts, err := h.tasks.Counts()
		if err != nil {
			return err
		}

		markdown := report.TaskSummary(tasks, counts)
		if tasksFormat == "md" {
			fmt.Print(markdown)
			return nil
		}
		renderer, err := report.New(100)
		if err != nil {
			fmt.Print(markdown)
			return nil
		}
		rendered, err := renderer.Render(markdown)
		if err != nil {
			fmt.Print(markdown)
			return nil
		}
		fmt.Fprint(os.Stdout, rendered)
		return nil
	},
}
