package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

// routineCmd manages recurring cron routines against the file-backed state
// dir (spec §3.1, §6.1).
func routineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routine",
		Short: "Manage recurring routines",
	}
	cmd.AddCommand(routineAddCmd())
	cmd.AddCommand(routineListCmd())
	cmd.AddCommand(routineCancelCmd())
	return cmd
}

func routineAddCmd() *cobra.Command {
	var cron, message, description string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a recurring routine",
	}
	cmd.Flags().StringVar(&cron, "cron", "", "5-field cron expression, weekday 0=Sunday")
	cmd.Flags().StringVar(&message, "message", "", "prompt to fire")
	cmd.Flags().StringVar(&description, "description", "", "human-readable note")
	pf := bindPolicyFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if message == "" {
			return fmt.Errorf("--message is required")
		}
		if !schedule.ValidCron(cron) {
			return fmt.Errorf("invalid cron expression %q", cron)
		}
		policy := pf.build()
		if err := policy.Validate(); err != nil {
			return err
		}
		r := schedule.NewRoutine(cron, message, description, policy)
		mgr, err := loadManager()
		if err != nil {
			return err
		}
		if err := mgr.AddRoutine(r); err != nil {
			return fmt.Errorf("add routine: %w", err)
		}
		fmt.Printf("routine %s scheduled (%s)\n", r.ID, r.Cron)
		return nil
	}
	return cmd
}

func routineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List routines",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			routines, err := mgr.ListRoutines()
			if err != nil {
				return fmt.Errorf("list routines: %w", err)
			}
			if len(routines) == 0 {
				fmt.Println("no routines scheduled")
				return nil
			}
			for _, r := range routines {
				fmt.Printf("%s  %-15s  %s\n", r.ID, r.Cron, r.Message)
			}
			return nil
		},
	}
}

func routineCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a routine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadManager()
			if err != nil {
				return err
			}
			if err := mgr.CancelRoutine(args[0]); err != nil {
				return fmt.Errorf("cancel routine: %w", err)
			}
			fmt.Printf("routine %s cancelled\n", args[0])
			return nil
		},
	}
}
