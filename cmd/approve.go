package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-sched/internal/control"
)

// loadControl opens the control drop-box a running orchestrator polls on
// the same cadence as its scheduler (SPEC_FULL §6.6) — this CLI process has
// no in-memory handle on the live Arbiter, so it hands off the command via
// the same crash-safe directory the routine/reminder/webhook CLIs use.
func loadControl() (*control.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return control.NewStore(cfg.Paths.ControlDir)
}

func approveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <tool-name>",
		Short: "Add a tool to the running session's always-allow list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadControl()
			if err != nil {
				return err
			}
			if err := c.Approve(args[0]); err != nil {
				return fmt.Errorf("approve: %w", err)
			}
			fmt.Printf("queued approval for %q; applied on the running process's next poll\n", args[0])
			return nil
		},
	}
}

func resetApprovalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-approvals",
		Short: "Clear the session-allow list and cancel all pending tool approvals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadControl()
			if err != nil {
				return err
			}
			if err := c.ResetApprovals(); err != nil {
				return fmt.Errorf("reset-approvals: %w", err)
			}
			fmt.Println("queued approval reset; applied on the running process's next poll")
			return nil
		},
	}
}
