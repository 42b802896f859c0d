package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/re-cinq/aidp-loop/internal/config"
)

func init() {
	rootCmd.AddCommand(vizCmd)
}

var vizCmd = &cobra.Command{
	Use:   "viz <config-file>",
	Short: "Visualize the work-loop unit graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadAndValidateConfig(args[0])
		if err != nil {
			return err
		}

		printGraph(cfg)
		return nil
	},
}

type vizNode struct {
	next map[string]string
}

// printGraph renders each unit and the outcome -> next-unit edges from
// its "next" map, rooted at the scheduler's decider unit.
func printGraph(cfg *config.Config) {
	nodes := make(map[string]*vizNode, len(cfg.WorkLoop.Units))
	for _, u := range cfg.WorkLoop.Units {
		nodes[u.Name] = &vizNode{next: u.Next}
	}

	fmt.Printf("[decider: %s]\n", cfg.WorkLoop.Defaults.FallbackAgentic)
	for i, u := range cfg.WorkLoop.Units {
		printBranch(nodes, u.Name, "", i == len(cfg.WorkLoop.Units)-1)
	}
}

func printBranch(nodes map[string]*vizNode, name string, prefix string, isLast bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	fmt.Printf("%s%s%s\n", prefix, connector, name)

	n, ok := nodes[name]
	if !ok {
		return
	}
	childPrefix := prefix
	if isLast {
		childPrefix += "    "
	} else {
		childPrefix += "│   "
	}
	for outcome, target := range n.next {
		fmt.Printf("%s    (%s) -> %s\n", childPrefix, outcome, target)
	}
}
