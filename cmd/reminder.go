package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

// reminderCmd manages one-shot (optionally chained) reminders directly
// against the file-backed state dir — no running orchestrator required,
// the same way the declarative Markdown entries are meant to be hand-edited.
func reminderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminder",
		Short: "Manage one-shot reminders",
	}
	cmd.AddCommand(reminderAddCmd())
	cmd.AddCommand(reminderListCmd())
	cmd.AddCommand(reminderCancelCmd())
	return cmd
}

func reminderAddCmd() *cobra.Command {
	var delay time.Duration
	var message, description string
	var maxChain int

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a one-shot reminder",
	}
	cmd.Flags().DurationVar(&delay, "delay", time.Hour, "how long from now the reminder fires")
	cmd.Flags().StringVar(&message, "message", "", "prompt to fire")
	cmd.Flags().StringVar(&description, "description", "", "human-readable note")
	cmd.Flags().IntVar(&maxChain, "max-chain", 0, "max follow-up depth (0 disables chaining, spec §4.F)")
	pf := bindPolicyFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if message == "" {
			return fmt.Errorf("--message is required")
		}
		policy := pf.build()
		if err := policy.Validate(); err != nil {
			return err
		}
		rem := schedule.NewReminder(time.Now(), delay, message, maxChain, "", policy)
		rem.Description = description
		if err := rem.Validate(); err != nil {
			return err
		}
		mgr, err := loadManager()
		if err != nil {
			return err
		}
		if err := mgr.AddReminder(rem); err != nil {
			return fmt.Errorf("add reminder: %w", err)
		}
		fmt.Printf("reminder %s scheduled for %s\n", rem.ID, rem.RunAt.Format(time.RFC3339))
		return nil
	}
	return cmd
}

func reminderListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			reminders, err := mgr.ListReminders()
			if err != nil {
				return fmt.Errorf("list reminders: %w", err)
			}
			if len(reminders) == 0 {
				fmt.Println("no reminders scheduled")
				return nil
			}
			for _, r := range reminders {
				chain := ""
				if r.MaxChain > 0 {
					chain = fmt.Sprintf(" chain=%d/%d", r.ChainDepth, r.MaxChain)
				}
				fmt.Printf("%s  %s%s  %s\n", r.ID, r.RunAt.Format(time.RFC3339), chain, r.Message)
			}
			return nil
		},
	}
}

func reminderCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			if err := mgr.CancelReminder(args[0]); err != nil {
				return fmt.Errorf("cancel reminder: %w", err)
			}
			fmt.Printf("reminder %s cancelled\n", args[0])
			return nil
		},
	}
}
