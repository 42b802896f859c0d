package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
	"github.com/re-cinq/aidp-loop/internal/engine"
	"github.com/spf13/cobra"
)

var (
	runOnce    bool
	runStep    string
	runPoll    time.Duration
)

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single fix-forward step and exit")
	runCmd.Flags().StringVar(&runStep, "step", "default", "Step name to record in the checkpoint history")
	runCmd.Flags().DurationVar(&runPoll, "poll", 5*time.Second, "Delay between steps in daemon mode")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <config-file>",
	Short: "Run the fix-forward work loop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := buildHarness(args[0])
		if err != nil {
			return err
		}
		h.vcs.EnsureIdentity()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var interrupted bool
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			fmt.Printf("\nreceived %s, cancelling...\n", sig)
			interrupted = true
			cancel()
		}()

		if runOnce {
			result := h.eng.ExecuteStep(ctx, runStep, h.repoDir)
			printStepResult(h, result)
			return exitFromStatus(result.Status, interrupted)
		}

		return runDaemon(ctx, h, &interrupted)
	},
}

func runDaemon(ctx context.Context, h *harness, interrupted *bool) error {
	fmt.Printf("aidp daemon started for %s (poll %s)\n", h.repoDir, runPoll)
	for {
		result := h.eng.ExecuteStep(ctx, runStep, h.repoDir)
		printStepResult(h, result)
		if result.Status == "cancelled" {
			return exitFromStatus(result.Status, *interrupted)
		}
		select {
		case <-ctx.Done():
			fmt.Println("aidp daemon stopped")
			return exitFromStatus("cancelled", *interrupted)
		case <-time.After(runPoll):
		}
	}
}

func printStepResult(h *harness, result engine.StepResult) {
	symbol, color := phaseDisplay(h.eng.CurrentPhase())
	fmt.Printf("%s%s%s step %s after %d iteration(s): %s\n", color, symbol, ansiReset, result.Status, result.Iterations, result.Message)
	if result.Error != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", result.Error)
	}
}

// exitFromStatus maps a step's terminal status to the CLI's exit code
// contract: 0 completed, 1 error, 2 cancelled, 130 interactive interrupt.
func exitFromStatus(status string, interrupted bool) error {
	switch status {
	case "completed":
		return nil
	case "cancelled":
		if interrupted {
			return &aidperr.ExitError{Code: 130, Err: fmt.Errorf("interrupted")}
		}
		return &aidperr.ExitError{Code: 2, Err: fmt.Errorf("cancelled")}
	default:
		return &aidperr.ExitError{Code: 1, Err: fmt.Errorf("step ended with status %q", status)}
	}
}
