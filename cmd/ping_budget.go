package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-sched/internal/budget"
	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
)

// pingBudgetCmd inspects and adjusts the file-backed ping budget (spec
// §4.B) without needing a running orchestrator — the budget state file is
// the single source of truth either way.
func pingBudgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping-budget",
		Short: "Inspect or adjust the ping budget",
	}
	cmd.AddCommand(pingBudgetStatusCmd())
	cmd.AddCommand(pingBudgetSetCapacityCmd())
	cmd.AddCommand(pingBudgetSetRefillCmd())
	return cmd
}

func loadBudget() (*budget.Budget, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return budget.New(cfg.Paths.StateDir, clock.Real{}), nil
}

func pingBudgetStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current ping budget state",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBudget()
			if err != nil {
				return err
			}
			st, err := b.Load()
			if err != nil {
				return fmt.Errorf("load budget: %w", err)
			}
			fmt.Println(st.FullStatusString())
			return nil
		},
	}
}

func pingBudgetSetCapacityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-capacity <n>",
		Short: "Set the ping budget's max capacity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBudget()
			if err != nil {
				return err
			}
			var n float64
			if _, err := fmt.Sscanf(args[0], "%f", &n); err != nil {
				return fmt.Errorf("invalid capacity %q", args[0])
			}
			if err := b.SetCapacity(n); err != nil {
				return fmt.Errorf("set capacity: %w", err)
			}
			fmt.Printf("ping budget capacity set to %v\n", n)
			return nil
		},
	}
}

func pingBudgetSetRefillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-refill-rate <minutes>",
		Short: "Set the ping budget's per-token refill interval, in minutes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBudget()
			if err != nil {
				return err
			}
			var minutes int
			if _, err := fmt.Sscanf(args[0], "%d", &minutes); err != nil {
				return fmt.Errorf("invalid minutes %q", args[0])
			}
			if err := b.SetRefillRate(minutes); err != nil {
				return fmt.Errorf("set refill rate: %w", err)
			}
			fmt.Printf("ping budget refill rate set to %d minutes\n", minutes)
			return nil
		},
	}
}
