package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/re-cinq/aidp-loop/internal/ledger"
	"github.com/re-cinq/aidp-loop/internal/report"
)

var (
	statusFollow   bool
	statusInterval float64
	statusFormat   string
)

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "Live-update status (like watch)")
	statusCmd.Flags().Float64VarP(&statusInterval, "interval", "n", 2.0, "Seconds between updates (with --follow)")
	statusCmd.Flags().StringVar(&statusFormat, "format", "term", "Output format: term (glamour) or md (raw Markdown)")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <config-file>",
	Short: "Show the checkpoint and task-ledger progress summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHarness(args[0])
		if err != nil {
			return err
		}

		if statusFollow {
			return followStatus(h)
		}
		return renderStatus(os.Stdout, h)
	},
}

func followStatus(h *harness) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	interval := time.Duration(statusInterval * float64(time.Second))
	var lastOutput string

	for {
		var buf bytes.Buffer
		if err := renderStatus(&buf, h); err != nil {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		output := buf.String()

		if output != lastOutput {
			fmt.Print("\033[H\033[2J")
			fmt.Printf("Every %.1fs: aidp status\n\n", statusInterval)
			fmt.Print(output)
			lastOutput = output
		}

		select {
		case <-sigCh:
			fmt.Println()
			return nil
		case <-time.After(interval):
		}
	}
}

func renderStatus(w io.Writer, h *harness) error {
	summary, err := h.ckpt.ProgressSummary()
	if err != nil {
		return err
	}
	counts, err := h.tasks.Counts()
	if err != nil {
		return err
	}
	tasks, err := h.tasks.All(ledger.Filter{})
	if err != nil {
		return err
	}

	markdown := report.CheckpointSummary(summary) + "\n" + report.TaskSummary(tasks, counts)

	if statusFormat == "md" {
		fmt.Fprint(w, markdown)
		return nil
	}

	renderer, err := report.New(100)
	if err != nil {
		fmt.Fprint(w, markdown)
		return nil
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		fmt.Fprint(w, markdown)
		return nil
	}
	fmt.Fprint(w, rendered)
	return nil
}
